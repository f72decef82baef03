package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/Laisky/errors/v2"
)

// EnvConfigDir overrides the platform config directory; used by tests and
// containerized deployments.
const EnvConfigDir = "ULTRA_MCP_CONFIG_DIR"

// Dir returns the platform-standard configuration directory, creating it when
// missing. Windows keeps the legacy "-nodejs" suffix so existing installs keep
// their data.
func Dir() (string, error) {
	if override := os.Getenv(EnvConfigDir); override != "" {
		if err := os.MkdirAll(override, 0o755); err != nil {
			return "", errors.Wrapf(err, "create config dir %s", override)
		}
		return override, nil
	}

	var dir string
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		dir = filepath.Join(appData, "ultra-mcp-nodejs")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolve home dir")
		}
		dir = filepath.Join(home, ".config", "ultra-mcp")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create config dir %s", dir)
	}
	return dir, nil
}

// FilePath returns the path of the persisted configuration file.
func FilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DatabasePath returns the path of the embedded tracking database.
func DatabasePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ultra-mcp.db"), nil
}

// PricingCachePath returns the path of the on-disk pricing cache file.
func PricingCachePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "litellm-pricing-cache.json"), nil
}
