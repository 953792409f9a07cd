//go:build cgo

package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// KuzuStore implements Store on KuzuDB. It requires CGO because the go-kuzu
// driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection

	// mu serializes use of conn and guards seq.
	mu  sync.Mutex
	seq int64
}

var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory database.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzuAt(":memory:")
}

// NewKuzuFileStore opens (or creates) a persistent database at dbPath so
// the source graph accumulates across runs.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzuAt(dbPath)
}

func openKuzuAt(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

func openKuzu(path string) (Store, error) {
	if path == "" {
		return NewKuzuStore()
	}
	return NewKuzuFileStore(path)
}

// Close releases the connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// Node tables precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Job(
		id STRING,
		topic STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Subtopic(
		id STRING,
		text STRING,
		origin STRING,
		ordinal INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Source(
		id STRING,
		url STRING,
		title STRING,
		snippet STRING,
		seq INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS HAS_SUBTOPIC(FROM Job TO Subtopic)`,
	`CREATE REL TABLE IF NOT EXISTS RETRIEVED(FROM Subtopic TO Source)`,
	`CREATE REL TABLE IF NOT EXISTS CITES(FROM Job TO Source)`,
}

// InitSchema creates all tables if they do not exist and resumes the source
// sequence of a persisted database.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	rows, err := s.query("MATCH (s:Source) RETURN count(s)", nil)
	if err != nil {
		return err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		s.seq = int64(toInt(rows[0][0]))
	}
	return nil
}

func (s *KuzuStore) AddJob(_ context.Context, jobID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(
		"MERGE (j:Job {id: $id}) ON CREATE SET j.topic = $topic",
		map[string]any{"id": jobID, "topic": topic},
	)
}

func (s *KuzuStore) AddSubtopic(_ context.Context, jobID string, st research.Subtopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.exec(
		`MERGE (t:Subtopic {id: $id})
		 ON CREATE SET t.text = $text, t.origin = $origin, t.ordinal = $ordinal`,
		map[string]any{
			"id":      st.ID,
			"text":    st.Text,
			"origin":  string(st.Origin),
			"ordinal": int64(st.Ordinal),
		},
	); err != nil {
		return err
	}
	return s.exec(
		`MATCH (j:Job {id: $job}), (t:Subtopic {id: $id})
		 MERGE (j)-[:HAS_SUBTOPIC]->(t)`,
		map[string]any{"job": jobID, "id": st.ID},
	)
}

func (s *KuzuStore) AddSource(_ context.Context, r research.SearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := CanonicalURL(r.URL)
	rows, err := s.query("MATCH (x:Source {id: $key}) RETURN x.id", map[string]any{"key": key})
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	if err := s.exec(
		"CREATE (x:Source {id: $key, url: $url, title: $title, snippet: $snippet, seq: $seq})",
		map[string]any{"key": key, "url": r.URL, "title": r.Title, "snippet": r.Snippet, "seq": s.seq},
	); err != nil {
		return err
	}
	s.seq++
	return nil
}

func (s *KuzuStore) AddRetrieval(_ context.Context, subtopicID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(
		`MATCH (t:Subtopic {id: $sid}), (x:Source {id: $key})
		 MERGE (t)-[:RETRIEVED]->(x)`,
		map[string]any{"sid": subtopicID, "key": CanonicalURL(url)},
	)
}

func (s *KuzuStore) AddCitation(_ context.Context, jobID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(
		`MATCH (j:Job {id: $job}), (x:Source {id: $key})
		 MERGE (j)-[:CITES]->(x)`,
		map[string]any{"job": jobID, "key": CanonicalURL(url)},
	)
}

func (s *KuzuStore) HasSource(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.query("MATCH (x:Source {id: $key}) RETURN x.id", map[string]any{"key": CanonicalURL(url)})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *KuzuStore) Sources(_ context.Context, jobID string) ([]Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.query(
		`MATCH (j:Job {id: $job})-[:HAS_SUBTOPIC]->(:Subtopic)-[:RETRIEVED]->(x:Source)
		 RETURN DISTINCT x.id, x.url, x.title, x.snippet, x.seq
		 ORDER BY x.seq`,
		map[string]any{"job": jobID},
	)
	if err != nil {
		return nil, err
	}
	citedRows, err := s.query(
		"MATCH (j:Job {id: $job})-[:CITES]->(x:Source) RETURN x.id",
		map[string]any{"job": jobID},
	)
	if err != nil {
		return nil, err
	}
	cited := make(map[string]bool, len(citedRows))
	for _, r := range citedRows {
		cited[toString(r[0])] = true
	}

	out := make([]Source, 0, len(rows))
	for _, r := range rows {
		out = append(out, Source{
			URL:     toString(r[1]),
			Title:   toString(r[2]),
			Snippet: toString(r[3]),
			Cited:   cited[toString(r[0])],
		})
	}
	return out, nil
}

func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	counts := []struct {
		cypher string
		dst    *int
	}{
		{"MATCH (n:Job) RETURN count(n)", &st.Jobs},
		{"MATCH (n:Subtopic) RETURN count(n)", &st.Subtopics},
		{"MATCH (n:Source) RETURN count(n)", &st.Sources},
		{"MATCH ()-[r:RETRIEVED]->() RETURN count(r)", &st.Retrievals},
		{"MATCH ()-[r:CITES]->() RETURN count(r)", &st.Citations},
	}
	for _, c := range counts {
		rows, err := s.query(c.cypher, nil)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			*c.dst = toInt(rows[0][0])
		}
	}
	return &st, nil
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all rows in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
