package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profiles holds the CLI's named servers and which one is active.
type Profiles struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is one saved server.
type Profile struct {
	URL     string `toml:"url"`
	Token   string `toml:"token,omitempty"`
	Actor   string `toml:"actor,omitempty"`
	NATSURL string `toml:"nats_url,omitempty"`
}

// ProfilePath returns ~/.config/reg2progress/cli.toml, honouring
// XDG_CONFIG_HOME.
func ProfilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reg2progress", "cli.toml"), nil
}

// LoadProfiles reads the profile file at path. A missing file is empty.
func LoadProfiles(path string) (*Profiles, error) {
	p := &Profiles{}
	if _, err := toml.DecodeFile(path, p); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if p.Profiles == nil {
		p.Profiles = map[string]Profile{}
	}
	return p, nil
}

// Save writes the profiles to path with owner-only permissions.
func (p *Profiles) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// Current returns the active profile, or false when none is set.
func (p *Profiles) Current() (Profile, bool) {
	if p.Active == "" {
		return Profile{}, false
	}
	prof, ok := p.Profiles[p.Active]
	return prof, ok
}
