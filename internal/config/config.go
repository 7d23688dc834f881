// Package config loads the webtex YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/webtex/bridge"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/internal/browser"
)

// Config is the top-level webtex configuration.
type Config struct {
	Surface  SurfaceConfig  `yaml:"surface"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Browser  BrowserConfig  `yaml:"browser"`
	Capture  CaptureConfig  `yaml:"capture"`
	Server   ServerConfig   `yaml:"server"`
	MCP      MCPConfig      `yaml:"mcp"`
	Sinks    SinksConfig    `yaml:"sinks"`
	FrameLog FrameLogConfig `yaml:"framelog"`

	// StartURL is loaded once the bridge is up. Empty = stay blank.
	StartURL string `yaml:"start_url"`
}

// SurfaceConfig fixes the output size for the whole session.
type SurfaceConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Alpha  string `yaml:"alpha"` // premultiplied | straight
}

type EncoderConfig struct {
	Format  string `yaml:"format"`  // lossless | lossy
	Quality int    `yaml:"quality"` // lossy only, 1..100; 0 = encode.DefaultQuality
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Mode             string        `yaml:"mode"` // headless | headful
	Stealth          bool          `yaml:"stealth"`
	UserAgent        string        `yaml:"user_agent"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

type CaptureConfig struct {
	PaintTimeout time.Duration `yaml:"paint_timeout"`
	SearchURL    string        `yaml:"search_url"`
	BlockPrivate bool          `yaml:"block_private"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"` // empty = no HTTP server
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"` // serve MCP over stdio
}

// SinksConfig lists where delivered frames go besides the payload.
type SinksConfig struct {
	Stdout  bool          `yaml:"stdout"`
	Webhook WebhookConfig `yaml:"webhook"`
	Dump    string        `yaml:"dump"` // file path, rewritten on every frame
	Queue   int           `yaml:"queue"`
}

type WebhookConfig struct {
	URL     string `yaml:"url"`
	Retries int    `yaml:"retries"`
}

type FrameLogConfig struct {
	Path      string        `yaml:"path"` // empty = disabled
	Retention time.Duration `yaml:"retention"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Surface.Width <= 0 {
		c.Surface.Width = 1280
	}
	if c.Surface.Height <= 0 {
		c.Surface.Height = 720
	}
	if c.Encoder.Format == "" {
		c.Encoder.Format = "lossless"
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Sinks.Webhook.Retries <= 0 {
		c.Sinks.Webhook.Retries = 3
	}
	if c.Sinks.Queue <= 0 {
		c.Sinks.Queue = 8
	}
	if c.FrameLog.Retention <= 0 {
		c.FrameLog.Retention = 7 * 24 * time.Hour
	}
}

// Validate checks the values that cannot be defaulted. Dimension limits
// are enforced by bridge.New.
func (c *Config) Validate() error {
	if _, err := frame.ParseFormat(c.Encoder.Format); err != nil {
		return err
	}
	if _, err := frame.ParseAlpha(c.Surface.Alpha); err != nil {
		return err
	}
	if c.Encoder.Quality < 0 || c.Encoder.Quality > 100 {
		return &frame.ConfigError{Field: "encoder.quality", Reason: fmt.Sprintf("%d out of 0..100", c.Encoder.Quality)}
	}
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return &frame.ConfigError{Field: "browser.mode", Reason: "unknown mode " + c.Browser.Mode}
	}
	return nil
}

// BridgeConfig returns the bridge settings. Call after Validate.
func (c *Config) BridgeConfig() bridge.Config {
	format, _ := frame.ParseFormat(c.Encoder.Format)
	alpha, _ := frame.ParseAlpha(c.Surface.Alpha)
	return bridge.Config{
		Width:        c.Surface.Width,
		Height:       c.Surface.Height,
		Alpha:        alpha,
		Format:       format,
		Quality:      c.Encoder.Quality,
		PaintTimeout: c.Capture.PaintTimeout,
		SearchURL:    c.Capture.SearchURL,
		BlockPrivate: c.Capture.BlockPrivate,
	}
}

// BrowserConfig returns the Chrome manager settings. The window is sized
// to the output surface.
func (c *Config) BrowserConfig() browser.Config {
	mode := browser.ModeHeadless
	if c.Browser.Mode == "headful" {
		mode = browser.ModeHeadful
	}
	return browser.Config{
		RemoteURL:        c.Browser.Remote,
		Width:            c.Surface.Width,
		Height:           c.Surface.Height,
		MemoryLimit:      c.Browser.MemoryLimit,
		RecycleInterval:  c.Browser.RecycleInterval,
		ResourceBlocking: c.Browser.ResourceBlocking,
		Mode:             mode,
		XvfbDisplay:      c.Browser.XvfbDisplay,
	}
}

func (c *Config) ViewConfig() browser.ViewConfig {
	return browser.ViewConfig{
		Width:     c.Surface.Width,
		Height:    c.Surface.Height,
		Stealth:   c.Browser.Stealth,
		UserAgent: c.Browser.UserAgent,
	}
}
