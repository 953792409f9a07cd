package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dusk-indust/deepresearch/internal/status"
)

func runStatus(args []string) error {
	var flags cliFlags
	fs := newFlagSet("status", &flags)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.ArchiveDir == "" {
		return fmt.Errorf("archiving is disabled (set archiveDir in research.yml)")
	}
	archive := status.NewArchive(cfg.ArchiveDir)

	if fs.NArg() > 0 {
		return printSingleStatus(archive, fs.Arg(0))
	}
	return printAllStatuses(archive)
}

func printSingleStatus(archive *status.Archive, id string) error {
	job, err := archive.Load(id)
	if err != nil {
		return err
	}
	s := status.Summarize(job)
	fmt.Printf("Job: %s\n", s.ID)
	fmt.Printf("Topic: %s\n", s.Topic)
	fmt.Printf("Status: %s\n", statusLabel(string(s.Status)))
	if s.Err != "" {
		fmt.Printf("Error: %s\n", s.Err)
	}
	fmt.Printf("Created: %s\n\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))

	reported := make(map[string]bool, len(job.Reports))
	for _, r := range job.Reports {
		reported[r.SubtopicID] = true
	}
	failed := make(map[string]string, len(job.Failures))
	for _, f := range job.Failures {
		failed[f.Subtopic.ID] = f.Reason
	}
	for _, st := range job.Subtopics {
		switch {
		case reported[st.ID]:
			fmt.Printf("  %s %d. %s\n", completeStyle.Render("✓"), st.Ordinal, st.Text)
		case failed[st.ID] != "":
			fmt.Printf("  %s %d. %s (%s)\n", failedStyle.Render("✗"), st.Ordinal, st.Text, failed[st.ID])
		default:
			fmt.Printf("  %s %d. %s\n", mutedStyle.Render("○"), st.Ordinal, st.Text)
		}
	}
	if job.Master != nil {
		fmt.Printf("\n  %d citations, review %s, %d additional sources\n",
			len(job.Master.Citations), job.Master.Review, len(job.Master.AdditionalSources))
	}
	return nil
}

func printAllStatuses(archive *status.Archive) error {
	summaries, err := archive.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No research jobs found.")
		fmt.Println("Run 'deepresearch research <topic>' to start one.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tSUBTOPICS\tCITATIONS\tCREATED\tTOPIC")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			s.ID, s.Status, s.Reports, s.Subtopics, s.Citations,
			s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Topic)
	}
	return tw.Flush()
}

func statusLabel(s string) string {
	switch s {
	case "done":
		return completeStyle.Render(s)
	case "failed":
		return failedStyle.Render(s)
	default:
		return workingStyle.Render(s)
	}
}
