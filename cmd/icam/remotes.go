package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/insectcam/internal/config"
)

var errNoActiveRemote = errors.New("no active remote; specify a name or run 'icam remote use <name>'")

// Remote is one appliance: the gateway websocket and, when the appliance
// mirrors its events, the NATS server it mirrors to.
type Remote struct {
	URL     string `toml:"url" json:"url"`
	NATSURL string `toml:"nats_url,omitempty" json:"nats_url,omitempty"`
}

// validate requires a ws:// or wss:// gateway and, if set, a nats:// or
// tls:// mirror.
func (r Remote) validate() error {
	if err := checkScheme(r.URL, "ws", "wss"); err != nil {
		return fmt.Errorf("gateway url: %w", err)
	}
	if r.NATSURL == "" {
		return nil
	}
	if err := checkScheme(r.NATSURL, "nats", "tls"); err != nil {
		return fmt.Errorf("nats url: %w", err)
	}
	return nil
}

func checkScheme(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%q: want %s://host:port", raw, schemes[0])
	}
	return nil
}

// Profiles is the remotes.toml file: every known appliance and the one
// commands talk to by default.
type Profiles struct {
	Active  string            `toml:"active" json:"active"`
	Remotes map[string]Remote `toml:"remotes" json:"remotes"`
}

// Set adds or replaces a profile.
func (p *Profiles) Set(name string, r Remote) error {
	if name == "" {
		return errors.New("remote name is empty")
	}
	if err := r.validate(); err != nil {
		return err
	}
	p.Remotes[name] = r
	return nil
}

// Remove deletes a profile, clearing the active marker if it pointed there.
func (p *Profiles) Remove(name string) error {
	if _, ok := p.Remotes[name]; !ok {
		return fmt.Errorf("remote %q not found", name)
	}
	delete(p.Remotes, name)
	if p.Active == name {
		p.Active = ""
	}
	return nil
}

// Use marks name as the default appliance.
func (p *Profiles) Use(name string) error {
	if _, ok := p.Remotes[name]; !ok {
		return fmt.Errorf("remote %q not found", name)
	}
	p.Active = name
	return nil
}

// Lookup resolves name, or the active profile when name is empty.
func (p *Profiles) Lookup(name string) (string, Remote, error) {
	if name == "" {
		name = p.Active
	}
	if name == "" {
		return "", Remote{}, errNoActiveRemote
	}
	r, ok := p.Remotes[name]
	if !ok {
		return "", Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return name, r, nil
}

// Names returns the profile names in sorted order.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.Remotes))
	for name := range p.Remotes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func profilesPath() (string, error) {
	dir := config.StateDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

// loadProfiles reads remotes.toml. A missing file is an empty set.
func loadProfiles() (*Profiles, error) {
	path, err := profilesPath()
	if err != nil {
		return nil, err
	}
	p := &Profiles{}
	if _, err := toml.DecodeFile(path, p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if p.Remotes == nil {
		p.Remotes = map[string]Remote{}
	}
	return p, nil
}

// save replaces remotes.toml atomically.
func (p *Profiles) save() error {
	path, err := profilesPath()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".remotes-*.toml")
	if err != nil {
		return fmt.Errorf("write remotes: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(p); err != nil {
		tmp.Close()
		return fmt.Errorf("encode remotes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write remotes: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write remotes: %w", err)
	}
	return nil
}

// activeRemote is read once per process; flags and env vars that depend on
// it are resolved before any command runs.
var activeRemote = sync.OnceValue(func() Remote {
	p, err := loadProfiles()
	if err != nil {
		return Remote{}
	}
	_, r, err := p.Lookup("")
	if err != nil {
		return Remote{}
	}
	return r
})
