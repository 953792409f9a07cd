package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/deepresearch/internal/config"
)

// version is set by goreleaser at build time.
var version = "dev"

const usage = `deepresearch orchestrates multi-agent web research.

Usage:
  deepresearch research [flags] <topic>   research a topic and print the report
  deepresearch serve [-http addr]         run the MCP server (stdio by default)
  deepresearch status [jobId]             list archived jobs or show one
  deepresearch export [-format json|mermaid] <jobId>
  deepresearch clear-cache                delete cached search results
  deepresearch init [-force]              write research.yml and .mcp.json
  deepresearch version

Common flags:
  -config path   config file (default: research.yml in -dir)
  -dir path      project directory (default: .)
  -verbose       debug logging
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "research":
		return runResearch(rest)
	case "serve":
		return runServe(rest)
	case "status":
		return runStatus(rest)
	case "export":
		return runExport(rest)
	case "clear-cache":
		return runClearCache(rest)
	case "init":
		return runInit(rest)
	case "version", "-version", "--version":
		fmt.Println(version)
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q (run 'deepresearch help')", cmd)
	}
}

// cliFlags are accepted by every subcommand.
type cliFlags struct {
	ConfigPath string
	Dir        string
	Verbose    bool
}

func newFlagSet(name string, flags *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("deepresearch "+name, flag.ContinueOnError)
	fs.StringVar(&flags.ConfigPath, "config", "", "path to research.yml")
	fs.StringVar(&flags.Dir, "dir", ".", "project directory holding research.yml")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	return fs
}

func loadConfig(flags cliFlags) (*config.Config, error) {
	if flags.ConfigPath != "" {
		return config.LoadFile(flags.ConfigPath)
	}
	return config.Load(flags.Dir)
}

// newLogger builds a production logger on stderr; stdout carries reports
// and the MCP stdio stream.
func newLogger(verbose bool, level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
