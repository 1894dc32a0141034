// Package assetcache serves the static shell cache-first from versioned cache
// generations, with install and activate lifecycle steps.
package assetcache

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Features struct {
	RuntimeCache bool `yaml:"runtime_cache"`
	Push         bool `yaml:"push"`
	Sync         bool `yaml:"sync"`
}

type NotificationDefaults struct {
	Title string `yaml:"title"`
	Icon  string `yaml:"icon"`
}

// Config is the asset manifest.
type Config struct {
	Name         string               `yaml:"name"`
	Version      string               `yaml:"version"`
	Scope        string               `yaml:"scope"`
	Shell        string               `yaml:"shell"`
	Assets       []string             `yaml:"assets"`
	Features     Features             `yaml:"features"`
	Notification NotificationDefaults `yaml:"notification"`
}

// CacheName is the generation name, e.g. alpha-waves-v1.
func (c Config) CacheName() string { return c.Name + "-" + c.Version }

func (c Config) InScope(path string) bool { return strings.HasPrefix(path, c.Scope) }

func LoadManifest(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

func ParseManifest(raw []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parse manifest: %w", err)
	}
	if c.Name == "" || c.Version == "" {
		return Config{}, errors.New("manifest needs name and version")
	}
	if c.Scope == "" {
		c.Scope = "/"
	}
	if !strings.HasSuffix(c.Scope, "/") {
		c.Scope += "/"
	}
	if c.Shell == "" {
		c.Shell = c.Scope + "index.html"
	}
	if c.Notification.Title == "" {
		c.Notification.Title = c.Name
	}
	return c, nil
}
