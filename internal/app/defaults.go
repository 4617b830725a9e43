package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths are the locations docwatch uses before a config file exists.
type Paths struct {
	ConfigFile string
	BaseDir    string
	// WatchDir is only a suggestion for `config init`; the config file
	// decides the watched directory afterwards.
	WatchDir string
}

// DefaultPaths resolves Paths from the environment:
//   - DOCWATCH_CONFIG_PATH, else $XDG_CONFIG_HOME/docwatch.toml, else ~/.config/docwatch.toml
//   - DOCWATCH_HOME, else $XDG_DATA_HOME/docwatch, else ~/.local/share/docwatch
//   - DOCWATCH_WATCH_DIR, else the working directory
//
// A leading ~ is expanded and every result is absolute.
func DefaultPaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	r := pathResolver{home: home}

	configDir := r.env("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dataDir := r.env("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))

	wd, err := os.Getwd()
	if err != nil {
		return Paths{}, fmt.Errorf("getting current directory: %w", err)
	}

	p := Paths{
		ConfigFile: r.env("DOCWATCH_CONFIG_PATH", filepath.Join(configDir, "docwatch.toml")),
		BaseDir:    r.env("DOCWATCH_HOME", filepath.Join(dataDir, "docwatch")),
		WatchDir:   r.env("DOCWATCH_WATCH_DIR", wd),
	}
	for _, field := range []*string{&p.ConfigFile, &p.BaseDir, &p.WatchDir} {
		abs, err := filepath.Abs(*field)
		if err != nil {
			return Paths{}, fmt.Errorf("resolving %s: %w", *field, err)
		}
		*field = abs
	}
	return p, nil
}

type pathResolver struct {
	home string
}

// env returns the variable with ~ expanded, or fallback when it is unset.
func (r pathResolver) env(key, fallback string) string {
	v := os.Getenv(key)
	switch {
	case v == "":
		return fallback
	case v == "~":
		return r.home
	case strings.HasPrefix(v, "~/"):
		return filepath.Join(r.home, v[2:])
	}
	return v
}
