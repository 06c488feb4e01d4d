// Package config loads the settings shared by the client and server binaries.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/filexfer"
	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no other is given.
const DefaultPath = "udpfile.yaml"

// Config holds the settings of both binaries.
type Config struct {
	ServerAddr string        `yaml:"server_addr"`
	ListenAddr string        `yaml:"listen_addr"`
	Root       string        `yaml:"root"`
	Timeout    time.Duration `yaml:"timeout"`
	Hash       string        `yaml:"hash"`
	LogLevel   string        `yaml:"log_level"`
	DSCP       int           `yaml:"dscp"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ServerAddr: "127.0.0.1:12345",
		ListenAddr: "127.0.0.1:12345",
		Root:       "./files",
		Timeout:    packet.Timeout,
		Hash:       filexfer.DefaultHash,
		LogLevel:   "info",
	}
}

// Load reads the configuration from the given YAML file path. Settings missing
// from the file keep their default. If the file does not exist, it returns the
// default Config with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	} else if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if _, err := filexfer.LookupHash(c.Hash); err != nil {
		return err
	}
	if _, err := log.LvlFromString(c.LogLevel); err != nil {
		return err
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("dscp must be in range 0..63, got %d", c.DSCP)
	}
	return nil
}

// HashFunc returns the configured digest function.
func (c *Config) HashFunc() (filexfer.Hash, error) {
	return filexfer.LookupHash(c.Hash)
}

// SetupLogging installs the root log handler, writing to w at the configured level.
func (c *Config) SetupLogging(w io.Writer) error {
	lvl, err := log.LvlFromString(c.LogLevel)
	if err != nil {
		return err
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(w, log.TerminalFormat(false))))
	return nil
}
