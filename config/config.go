// Package config loads the remotedesk configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fixdesk/remotedesk/shared"
	"github.com/goccy/go-yaml"
	"github.com/pion/webrtc/v4"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`

	WebRTC struct {
		ICEServers      []ICEServer   `yaml:"ice_servers"`
		IncludeLoopback bool          `yaml:"include_loopback"`
		ChannelLabel    string        `yaml:"channel_label"`
		GatherTimeout   time.Duration `yaml:"gather_timeout"`
		FrameRate       int           `yaml:"frame_rate"`
		BitRate         int           `yaml:"bit_rate"`
	} `yaml:"webrtc"`

	Capture struct {
		Mode string `yaml:"mode"`
	} `yaml:"capture"`

	Executor struct {
		Policy string `yaml:"policy"`
	} `yaml:"executor"`

	Store struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		Redis  struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"store"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"api"`

	Assistant struct {
		Model       string        `yaml:"model"`
		BaseURL     string        `yaml:"base_url"`
		APIKeyEnv   string        `yaml:"api_key_env"`
		ExecTimeout time.Duration `yaml:"exec_timeout"`
	} `yaml:"assistant"`

	Recording struct {
		Dir string `yaml:"dir"`
	} `yaml:"recording"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.Log.File = "remotedesk.log"
	c.Log.MaxSizeMB = 10
	c.Log.MaxBackups = 2
	c.Log.MaxAgeDays = 3

	c.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	c.WebRTC.ChannelLabel = "remote-control"
	c.WebRTC.GatherTimeout = 15 * time.Second
	c.WebRTC.FrameRate = 15
	c.WebRTC.BitRate = 1_500_000

	c.Capture.Mode = "viewport"
	c.Executor.Policy = "clamp"

	c.Store.Driver = "sqlite"
	c.Store.Path = "remotedesk.db"
	c.Store.Redis.Address = "localhost:6379"
	c.Store.Redis.Prefix = "remotedesk"

	c.API.Address = "127.0.0.1:8088"

	c.Assistant.Model = "gpt-4o-mini"
	c.Assistant.BaseURL = "https://api.openai.com/v1"
	c.Assistant.APIKeyEnv = "OPENAI_API_KEY"
	c.Assistant.ExecTimeout = 30 * time.Second

	c.Recording.Dir = "recordings"
	return c
}

// Load overlays the YAML file at path on Default and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrNoConfig, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, key string) {
		v, err := shared.Getenv(shared.GetenvString, key, false, *dst)
		errs = append(errs, err)
		*dst = v
	}
	str(&c.Log.File, "REMOTEDESK_LOG_FILE")
	str(&c.Capture.Mode, "REMOTEDESK_CAPTURE_MODE")
	str(&c.Executor.Policy, "REMOTEDESK_EXECUTOR_POLICY")
	str(&c.Store.Driver, "REMOTEDESK_STORE_DRIVER")
	str(&c.Store.Path, "REMOTEDESK_STORE_PATH")
	str(&c.Store.Redis.Address, "REDIS_ADDR")
	str(&c.Store.Redis.Password, "REDIS_PASSWORD")
	str(&c.API.Address, "REMOTEDESK_API_ADDR")
	str(&c.Assistant.Model, "REMOTEDESK_ASSISTANT_MODEL")
	str(&c.Assistant.BaseURL, "OPENAI_BASE_URL")
	str(&c.Recording.Dir, "REMOTEDESK_RECORDING_DIR")

	var err error
	c.Store.Redis.DB, err = shared.Getenv(shared.GetenvInt, "REDIS_DB", false, c.Store.Redis.DB)
	errs = append(errs, err)
	c.API.Enabled, err = shared.Getenv(shared.GetenvBool, "REMOTEDESK_API_ENABLED", false, c.API.Enabled)
	errs = append(errs, err)
	c.WebRTC.IncludeLoopback, err = shared.Getenv(shared.GetenvBool, "REMOTEDESK_INCLUDE_LOOPBACK", false, c.WebRTC.IncludeLoopback)
	errs = append(errs, err)
	c.WebRTC.GatherTimeout, err = shared.Getenv(shared.GetenvDuration, "REMOTEDESK_GATHER_TIMEOUT", false, c.WebRTC.GatherTimeout)
	errs = append(errs, err)
	return errors.Join(errs...)
}

// Validate returns the first invalid field.
func (c *Config) Validate() error {
	if c.Log.File == "" {
		return fmt.Errorf("log.file must not be empty")
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0")
	}
	for i, s := range c.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}
	if c.WebRTC.ChannelLabel == "" {
		return fmt.Errorf("webrtc.channel_label must not be empty")
	}
	if c.WebRTC.GatherTimeout <= 0 {
		return fmt.Errorf("webrtc.gather_timeout must be > 0")
	}
	if c.WebRTC.FrameRate <= 0 {
		return fmt.Errorf("webrtc.frame_rate must be > 0")
	}
	switch strings.ToLower(c.Capture.Mode) {
	case "viewport", "relative", "exclusive", "pointer-lock", "lock":
	default:
		return fmt.Errorf("capture.mode must be viewport or exclusive, got %q", c.Capture.Mode)
	}
	switch c.Executor.Policy {
	case "clamp", "reject", "pass":
	default:
		return fmt.Errorf("executor.policy must be clamp, reject or pass, got %q", c.Executor.Policy)
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must not be empty when store.driver=sqlite")
		}
	case "redis":
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address must not be empty when store.driver=redis")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or redis, got %q", c.Store.Driver)
	}
	if c.API.Enabled && c.API.Address == "" {
		return fmt.Errorf("api.address must not be empty when api.enabled=true")
	}
	if c.Assistant.ExecTimeout <= 0 {
		return fmt.Errorf("assistant.exec_timeout must be > 0")
	}
	if c.Recording.Dir == "" {
		return fmt.Errorf("recording.dir must not be empty")
	}
	return nil
}

// WebRTCICEServers converts the configured servers for pion.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.WebRTC.ICEServers))
	for _, s := range c.WebRTC.ICEServers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

// APIKey reads the assistant key from the configured variable.
func (c *Config) APIKey() (string, error) {
	return shared.Getenv(shared.GetenvString, c.Assistant.APIKeyEnv, true, "")
}
