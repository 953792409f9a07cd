package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dusk-indust/deepresearch/internal/export"
	"github.com/dusk-indust/deepresearch/internal/sources"
	"github.com/dusk-indust/deepresearch/internal/status"
)

func runExport(args []string) error {
	var flags cliFlags
	var format string
	fs := newFlagSet("export", &flags)
	fs.StringVar(&format, "format", "json", "output format: json or mermaid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: deepresearch export [-format json|mermaid] <jobId>")
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.ArchiveDir == "" {
		return fmt.Errorf("archiving is disabled (set archiveDir in research.yml)")
	}
	job, err := status.NewArchive(cfg.ArchiveDir).Load(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	switch format {
	case "json":
		out, err := export.MarshalJob(job)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(out, '\n'))
		return err
	case "mermaid":
		ctx := context.Background()
		store, err := sources.Open(ctx, cfg.Sources, nil)
		if err != nil {
			return fmt.Errorf("open source graph: %w", err)
		}
		defer store.Close()

		if err := export.Hydrate(ctx, store, job); err != nil {
			return err
		}
		mermaid, err := export.GenerateMermaid(ctx, store, job)
		if err != nil {
			return err
		}
		fmt.Print(mermaid)
		return nil
	default:
		return fmt.Errorf("unknown export format %q (want json or mermaid)", format)
	}
}
