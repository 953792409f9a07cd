package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/deepresearch/internal/mcptools"
	"github.com/dusk-indust/deepresearch/internal/orchestrator"
)

func runServe(args []string) error {
	var flags cliFlags
	var addr string
	fs := newFlagSet("serve", &flags)
	fs.StringVar(&addr, "http", "", "serve streamable HTTP on this address instead of stdio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(flags.Verbose || cfg.Verbose, zapcore.InfoLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Progress has no terminal to go to; surface it in the debug log.
	go func() {
		for ev := range a.orch.Progress() {
			logger.Debug(orchestrator.FormatProgress(ev),
				zap.String("job", ev.JobID),
				zap.String("stage", string(ev.Stage)),
				zap.Int("round", ev.Round),
			)
		}
	}()

	svc := mcptools.NewResearchService(a.orch, a.dispatcher, a.archive, logger)
	if addr != "" {
		return mcptools.RunHTTP(ctx, svc, addr)
	}
	logger.Info("serving MCP over stdio")
	return mcptools.RunStdio(ctx, svc)
}
