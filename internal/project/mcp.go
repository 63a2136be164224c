package project

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/randalmurphal/tc/internal/util"
)

// MCPServer is one server entry in .mcp.json.
type MCPServer struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	ProjectDir string `json:"project_dir"`
}

// MCPConfig is the Agent-side pointer at the control plane. Init writes
// it with an empty URL; the engine rewrites it with the live endpoint
// every time it binds a port.
type MCPConfig struct {
	Servers map[string]MCPServer `json:"mcpServers"`
}

// WriteMCPConfig writes .mcp.json pointing at endpoint (may be empty
// before any engine has run).
func WriteMCPConfig(paths Paths, endpoint string) error {
	cfg := MCPConfig{
		Servers: map[string]MCPServer{
			"tc": {
				Type:       "http",
				URL:        endpoint,
				ProjectDir: paths.Root,
			},
		},
	}
	if err := util.AtomicWriteJSON(paths.MCPConfigPath(), cfg, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", paths.MCPConfigPath(), err)
	}
	return nil
}

// ReadMCPConfig loads .mcp.json; callers use it to find a live
// control-plane endpoint (e.g. `tc respond` answering from another
// terminal).
func ReadMCPConfig(paths Paths) (MCPConfig, error) {
	data, err := os.ReadFile(paths.MCPConfigPath())
	if err != nil {
		return MCPConfig{}, err
	}
	var cfg MCPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return MCPConfig{}, fmt.Errorf("parse %s: %w", paths.MCPConfigPath(), err)
	}
	return cfg, nil
}

// ControlEndpoint returns the configured URL for the tc server, empty
// when unset.
func (c MCPConfig) ControlEndpoint() string {
	return c.Servers["tc"].URL
}
