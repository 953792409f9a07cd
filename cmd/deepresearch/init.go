package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dusk-indust/deepresearch/internal/assets"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

const mcpServerName = "deepresearch"

func runInit(args []string) error {
	var flags cliFlags
	var force bool
	fs := newFlagSet("init", &flags)
	fs.BoolVar(&force, "force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return initProject(os.Stdout, flags.Dir, force)
}

// initProject writes the default research.yml and registers the MCP server
// in .mcp.json under dir.
func initProject(w io.Writer, dir string, force bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving project dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	cfgPath := filepath.Join(abs, "research.yml")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Fprintf(w, "  skipped ./research.yml (exists, use -force to overwrite)\n")
	} else {
		if err := os.WriteFile(cfgPath, assets.DefaultConfig, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		fmt.Fprintf(w, "  created ./research.yml\n")
	}

	if err := mergeMCPConfig(w, filepath.Join(abs, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nSetup complete. Set BRAVE_API_KEY and start Ollama, then run 'deepresearch research <topic>'.")
	return nil
}

// mergeMCPConfig creates or merges the deepresearch entry into .mcp.json,
// keeping every other server entry.
func mergeMCPConfig(w io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers[mcpServerName]; exists && !force {
		fmt.Fprintf(w, "  skipped .mcp.json %s entry (exists, use -force to overwrite)\n", mcpServerName)
		return nil
	}

	cfg.MCPServers[mcpServerName] = json.RawMessage(assets.MCPEntry)

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(w, "  %s .mcp.json with %s MCP server\n", action, mcpServerName)
	return nil
}
