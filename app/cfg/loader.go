package cfg

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DataDir string `long:"data-dir" short:"d" env:"DATA_DIR" default:"~/.carscan" description:"Database directory"`

	// Marketplace configuration
	Provider  string `long:"provider" env:"PROVIDER" default:"allegro" description:"Marketplace provider identifier"`
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"carscan/1.0" description:"User agent string for HTTP requests"`
	NoFetch   bool   `long:"no-fetch" env:"NO_FETCH" description:"Don't fetch a token if the stored one is expired"`

	// Application metadata
	Host  string `long:"host" env:"HOST_LABEL" description:"Host identifier recorded in run metadata (defaults to the hostname)"`
	Debug bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	dataDir, err := expandHome(raw.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}

	host := raw.Host
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("failed to resolve hostname: %w", err)
		}
	}

	cfg := &Cfg{
		DataDir:   dataDir,
		Provider:  raw.Provider,
		UserAgent: raw.UserAgent,
		NoFetch:   raw.NoFetch,
		Host:      host,
		Debug:     raw.Debug,
		Version:   GetVersion(),
	}

	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
