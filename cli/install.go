package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
)

func newInstallCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register ultra-mcp as an MCP server in the host IDE's configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := hostConfigPath(target)
			if err != nil {
				return err
			}
			executable, err := os.Executable()
			if err != nil {
				return errors.Wrap(err, "resolve own executable path")
			}

			if err := writeServerEntry(path, executable); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered ultra-mcp in %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "claude", "host to install into: claude or cursor")
	return cmd
}

// hostConfigPath resolves the MCP server registry file of the host IDE.
func hostConfigPath(target string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home dir")
	}

	switch target {
	case "claude":
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
		case "windows":
			appData := os.Getenv("APPDATA")
			if appData == "" {
				return "", errors.New("APPDATA is not set")
			}
			return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
		default:
			return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
		}
	case "cursor":
		return filepath.Join(home, ".cursor", "mcp.json"), nil
	default:
		return "", errors.Errorf("unknown install target %q", target)
	}
}

// writeServerEntry merges the ultra-mcp entry into the host's mcpServers map,
// preserving everything else in the file.
func writeServerEntry(path, executable string) error {
	document := map[string]any{}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &document); err != nil {
			return errors.Wrapf(err, "parse existing host config %s", path)
		}
	case os.IsNotExist(err):
		// Fresh file.
	default:
		return errors.Wrapf(err, "read host config %s", path)
	}

	servers, _ := document["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers["ultra-mcp"] = map[string]any{
		"command": executable,
		"args":    []string{"serve"},
	}
	document["mcpServers"] = servers

	updated, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode host config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create host config dir for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, updated, 0o600); err != nil {
		return errors.Wrapf(err, "write host config %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "replace host config %s", path)
}
