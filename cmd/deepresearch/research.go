package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/deepresearch/internal/export"
	"github.com/dusk-indust/deepresearch/internal/orchestrator"
	"github.com/dusk-indust/deepresearch/internal/research"
)

func runResearch(args []string) error {
	var flags cliFlags
	var (
		asJSON bool
		quiet  bool
		output string
	)
	fs := newFlagSet("research", &flags)
	fs.BoolVar(&asJSON, "json", false, "print the job as JSON instead of the report")
	fs.BoolVar(&quiet, "quiet", false, "suppress progress output")
	fs.StringVar(&output, "o", "", "write the report to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	topic := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if topic == "" {
		return fmt.Errorf("usage: deepresearch research [flags] <topic>")
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(flags.Verbose || cfg.Verbose, zapcore.WarnLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printProgress(os.Stderr, topic, a.orch.Progress(), quiet)
	}()

	master, job, runErr := a.orch.ConductResearch(ctx, topic)
	a.Close()
	wg.Wait()

	if runErr != nil {
		if job != nil {
			return fmt.Errorf("research job %s failed: %w", job.ID, runErr)
		}
		return runErr
	}

	var out []byte
	if asJSON {
		out, err = export.MarshalJob(job)
		if err != nil {
			return err
		}
		out = append(out, '\n')
	} else {
		out = []byte(orchestrator.FormatReport(master))
	}

	if !quiet {
		stats := a.dispatcher.Stats()
		fmt.Fprintln(os.Stderr, mutedStyle.Render(fmt.Sprintf(
			"job %s: %d subtopics, %d citations, search cache %d hits / %d misses",
			job.ID, len(job.Subtopics), len(master.Citations), stats.Hits, stats.Misses)))
	}

	if output != "" {
		if err := os.WriteFile(output, out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		return nil
	}
	_, err = os.Stdout.Write(out)
	return err
}

// printProgress renders events until the channel closes. A stage header is
// printed whenever the stage or round changes.
func printProgress(w io.Writer, topic string, events <-chan orchestrator.ProgressEvent, quiet bool) {
	var (
		stage research.Status
		round = -1
	)
	for ev := range events {
		if quiet {
			continue
		}
		if ev.Stage != stage || ev.Round != round {
			stage, round = ev.Stage, ev.Round
			fmt.Fprintln(w, headerStyle.Render(orchestrator.FormatStageHeader(topic, stage, round)))
		}
		if ev.Subtopic == "" && ev.Status == orchestrator.ProgressWorking {
			continue
		}
		fmt.Fprintln(w, styleProgress(ev))
	}
}
