// ABOUTME: Configuration file loading for sendspin-transcode
// ABOUTME: Reads YAML or TOML by file extension, applies defaults and validates each section
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownExtension is returned for config files that are neither YAML nor TOML
var ErrUnknownExtension = errors.New("unknown config file extension")

// Config is the complete configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Encoder  EncoderConfig  `yaml:"encoder" toml:"encoder"`
	Playlist PlaylistConfig `yaml:"playlist" toml:"playlist"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig configures the stream server
type ServerConfig struct {
	Port int    `yaml:"port" toml:"port"`
	Name string `yaml:"name" toml:"name"`
	MDNS bool   `yaml:"mdns" toml:"mdns"`
	TUI  bool   `yaml:"tui" toml:"tui"`
}

// EncoderConfig selects container, codec and target format.
// Empty values are left to the container defaults.
type EncoderConfig struct {
	Format       string `yaml:"format" toml:"format"`
	Codec        string `yaml:"codec" toml:"codec"`
	MimeType     string `yaml:"mime_type" toml:"mime_type"`
	Filename     string `yaml:"filename" toml:"filename"`
	SampleFormat string `yaml:"sample_format" toml:"sample_format"`
	SampleRate   int    `yaml:"sample_rate" toml:"sample_rate"`
	Layout       string `yaml:"layout" toml:"layout"`
	BitRate      int    `yaml:"bit_rate" toml:"bit_rate"`
}

// PlaylistConfig configures the decoding side
type PlaylistConfig struct {
	Items       []string `yaml:"items" toml:"items"`
	Realtime    bool     `yaml:"realtime" toml:"realtime"`
	LeadMS      int      `yaml:"lead_ms" toml:"lead_ms"`
	ChunkFrames int      `yaml:"chunk_frames" toml:"chunk_frames"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	File  string `yaml:"file" toml:"file"`
	Debug bool   `yaml:"debug" toml:"debug"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 8927,
			Name: "Sendspin Transcode",
			MDNS: true,
		},
		Encoder: EncoderConfig{
			Format:       "ogg",
			SampleFormat: "s16",
			SampleRate:   48000,
			Layout:       "stereo",
		},
		Playlist: PlaylistConfig{
			Realtime: true,
			LeadMS:   500,
		},
		Logging: LoggingConfig{
			File: "sendspin-transcode.log",
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		case ".toml":
			err = toml.Unmarshal(data, &cfg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder config: %w", err)
	}

	if err := c.Playlist.Validate(); err != nil {
		return fmt.Errorf("playlist config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	return nil
}

// Validate validates encoder configuration
func (e *EncoderConfig) Validate() error {
	if _, err := e.TargetFormat(); err != nil {
		return err
	}

	if e.BitRate < 0 {
		return fmt.Errorf("bit_rate cannot be negative, got %d", e.BitRate)
	}

	return nil
}

// TargetFormat returns the requested encoder format. Unset fields stay zero.
func (e *EncoderConfig) TargetFormat() (audio.Format, error) {
	var f audio.Format

	if e.SampleFormat != "" {
		sf, err := audio.ParseSampleFormat(e.SampleFormat)
		if err != nil {
			return f, err
		}
		f.SampleFormat = sf
	}

	if e.SampleRate < 0 || e.SampleRate > 384000 {
		return f, fmt.Errorf("sample_rate must be between 0 and 384000, got %d", e.SampleRate)
	}
	f.SampleRate = e.SampleRate

	if e.Layout != "" {
		l, err := audio.ParseChannelLayout(e.Layout)
		if err != nil {
			return f, err
		}
		f.Layout = l
	}

	return f, nil
}

// Validate validates playlist configuration
func (p *PlaylistConfig) Validate() error {
	if p.LeadMS < 0 {
		return fmt.Errorf("lead_ms cannot be negative, got %d", p.LeadMS)
	}

	if p.ChunkFrames < 0 {
		return fmt.Errorf("chunk_frames cannot be negative, got %d", p.ChunkFrames)
	}

	return nil
}

// Lead returns how far ahead of real time the playlist may decode
func (p *PlaylistConfig) Lead() time.Duration {
	return time.Duration(p.LeadMS) * time.Millisecond
}
