package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Manifest lists the assets precached into the static partition at install time.
// Bumping Version produces a new static partition and evicts the old one on activation.
type Manifest struct {
	Version string   `toml:"version"`
	Assets  []string `toml:"assets"`
}

// DefaultManifest mirrors the asset list shipped with the story client.
func DefaultManifest() *Manifest {
	return &Manifest{
		Version: "v6",
		Assets: []string{
			"/",
			"/index.html",
			"/styles/styles.css",
			"/styles/responsives.css",
			"/scripts/index.js",
			"/pages/home/home-page.js",
			"/pages/home/home-presenter.js",
			"/pages/about/about-page.js",
			"/pages/add/add-story-page.js",
			"/pages/add/add-story-presenter.js",
			"/database.js",
			"/app.js",
			"/OfflineStories.js",
			"/manifest.json",
			"/images/images1.png",
			"/images/semangat1.png",
			"/icons/icon-x192.png",
			"/icons/icon-x512.png",
			"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css",
			"https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&display=swap",
		},
	}
}

// StaticPartition is the name of the partition holding this manifest's assets.
func (m *Manifest) StaticPartition() string {
	return "static-" + m.Version
}

// LoadManifest reads a TOML manifest. An empty path or a missing file yields DefaultManifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultManifest(), nil
		}
		return nil, err
	}

	m := &Manifest{}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.Version = strings.TrimSpace(m.Version)
	if m.Version == "" {
		return nil, fmt.Errorf("manifest %s: version is required", path)
	}
	m.Assets = mergeStringSlice(m.Assets, nil)
	return m, nil
}
