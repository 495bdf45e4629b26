// Package config loads the example binaries' runtime settings from the
// environment, per SPEC_FULL.md's ambient stack (caarlos0/env/v10), mirroring
// how the wider example pack keeps CLI binaries thin and their tunables
// externally configurable.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the settings shared by cmd/wschat and cmd/httpcat. Fields not
// relevant to a given binary are simply left at their defaults.
type Config struct {
	ListenAddr      string        `env:"HTTPX_LISTEN_ADDR" envDefault:":8080"`
	DialAddr        string        `env:"HTTPX_DIAL_ADDR" envDefault:"localhost:8080"`
	ReadBufferSize  int           `env:"HTTPX_READ_BUFFER_SIZE" envDefault:"4096"`
	WriteBufferSize int           `env:"HTTPX_WRITE_BUFFER_SIZE" envDefault:"4096"`
	ReadMessageMax  int64         `env:"HTTPX_READ_MESSAGE_MAX" envDefault:"1048576"`
	PermessageDeflate bool        `env:"HTTPX_PERMESSAGE_DEFLATE" envDefault:"false"`
	DialTimeout     time.Duration `env:"HTTPX_DIAL_TIMEOUT" envDefault:"10s"`
}

// Load reads a Config from the process environment, applying envDefault
// tags for anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
