// Package config loads the daemon's optional YAML configuration file:
// everything the minimum `spmd <bind-addr> <port>` CLI contract doesn't
// name. Without a -config flag the daemon runs on Defaults; a config
// path that cannot be read is an error.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full set of tunables beyond bind address and
// port, which the CLI always supplies positionally.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
}

// StoreConfig names the object root and an optional initial super
// subject to bootstrap on first start.
type StoreConfig struct {
	ObjectRoot string     `yaml:"object_root"`
	Bootstrap  *Bootstrap `yaml:"bootstrap"`
}

// Bootstrap describes the one super subject created if the subject
// table is empty at startup.
type Bootstrap struct {
	Subject  string `yaml:"subject"`
	Type     string `yaml:"type"`
	Password string `yaml:"password"`
}

// AuthConfig tunes the key-derivation and anti-timing parameters.
type AuthConfig struct {
	Rounds           int           `yaml:"rounds"`
	BaseLoginDelay   time.Duration `yaml:"base_login_delay"`
	LoginDelaySpread time.Duration `yaml:"login_delay_spread"`
}

// SessionConfig tunes per-connection resource and policy behavior.
type SessionConfig struct {
	ProtocolVersion uint32 `yaml:"protocol_version"`
	WriteHighWater  int    `yaml:"write_high_water"`
	EnforcePolicy   bool   `yaml:"enforce_policy"`
}

// Defaults mirrors the reference protocol's constants exactly, with
// policy enforcement turned on (see the session package for the
// rationale): this is the configuration a bare `spmd <bind-addr>
// <port>` invocation runs with.
func Defaults() Config {
	return Config{
		Store: StoreConfig{ObjectRoot: "./fileroot"},
		Auth: AuthConfig{
			Rounds:           16,
			BaseLoginDelay:   3 * time.Second,
			LoginDelaySpread: 1 * time.Second,
		},
		Session: SessionConfig{
			ProtocolVersion: 1,
			WriteHighWater:  10000,
			EnforcePolicy:   true,
		},
	}
}

// Load reads and merges a YAML config file over Defaults. Fields the
// file omits keep their default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}
