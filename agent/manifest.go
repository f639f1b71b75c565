package agent

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Manifest is handlerforge.toml's structured form of the same setups the
// inline configuration grammar describes — useful for configurations too
// large to fit on a single argument line, the same motivation a
// project-config TOML manifest serves elsewhere in this ecosystem.
type Manifest struct {
	Setup []ManifestSetup `toml:"setup"`

	// Dir is the path the manifest was loaded from (set by LoadManifest).
	Dir string `toml:"-"`
}

// ManifestSetup is one [[setup]] table entry.
type ManifestSetup struct {
	Handler  string   `toml:"handler"`
	Spawner  string   `toml:"spawner"`
	Handlees []string `toml:"handlees"`
}

// LoadManifest parses a handlerforge.toml file at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent: read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("agent: parse %s: %w", path, err)
	}
	m.Dir = path
	return &m, nil
}

// Setups converts the manifest's structured entries into the same Setup
// values ParseConfig produces from the inline grammar, so both forms feed
// one plan-building code path.
func (m *Manifest) Setups() ([]Setup, error) {
	out := make([]Setup, 0, len(m.Setup))
	for _, s := range m.Setup {
		setup := Setup{Handler: s.Handler}
		if len(s.Handlees) > 0 {
			setup.Handlees = append([]string{}, s.Handlees...)
		}
		if s.Spawner != "" {
			ref, err := parseSpawner(s.Spawner)
			if err != nil {
				return nil, fmt.Errorf("agent: manifest setup for %s: %w", s.Handler, err)
			}
			setup.Spawner = ref
		}
		out = append(out, setup)
	}
	return out, nil
}
