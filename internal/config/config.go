// Package config loads the server's listen addresses, advertised
// cross-tier handoff addresses, and the lobby notice string from an
// optional JSON file, overridable by CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ListenConfig is a single tier's bind address.
type ListenConfig struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// AdvertisementConfig is the (address, port) a tier publishes for clients
// to reconnect to the named next tier.
type AdvertisementConfig struct {
	Ranch     ListenConfig `json:"ranch"`
	Race      ListenConfig `json:"race"`
	Messenger ListenConfig `json:"messenger"`
}

// GeneralConfig holds process-wide, tier-agnostic settings.
type GeneralConfig struct {
	// Notice may contain the literal placeholder "{players_online}",
	// substituted at login-OK.
	Notice string `json:"notice"`
}

// Config is the full, mutable server configuration.
type Config struct {
	mu sync.RWMutex

	Lobby AdvertisementListen `json:"lobby"`
	Ranch AdvertisementListen `json:"ranch"`
	Race  AdvertisementListen `json:"race"`

	Advertisement AdvertisementConfig `json:"advertisement"`
	General       GeneralConfig       `json:"general"`

	StatusListen ListenConfig `json:"status"`
	RelayListen  ListenConfig `json:"relay"`
}

// AdvertisementListen is a tier's own bind address (distinct from the
// addresses it advertises to clients for other tiers).
type AdvertisementListen struct {
	Listen ListenConfig `json:"listen"`
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		Lobby: AdvertisementListen{Listen: ListenConfig{Address: "0.0.0.0", Port: 10030}},
		Ranch: AdvertisementListen{Listen: ListenConfig{Address: "0.0.0.0", Port: 10031}},
		Race:  AdvertisementListen{Listen: ListenConfig{Address: "0.0.0.0", Port: 10032}},
		Advertisement: AdvertisementConfig{
			Ranch:     ListenConfig{Address: "127.0.0.1", Port: 10031},
			Race:      ListenConfig{Address: "127.0.0.1", Port: 10032},
			Messenger: ListenConfig{Address: "127.0.0.1", Port: 10033},
		},
		General:      GeneralConfig{Notice: "Welcome! {players_online} riders online."},
		StatusListen: ListenConfig{Address: "127.0.0.1", Port: 10080},
		RelayListen:  ListenConfig{Address: "127.0.0.1", Port: 10500},
	}
}

// LoadFile merges a JSON config file on top of the receiver's current
// values. A missing file is not an error; callers are expected to run with
// defaults plus flags in that case.
func (c *Config) LoadFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Snapshot returns a value copy safe to read without holding any lock.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
