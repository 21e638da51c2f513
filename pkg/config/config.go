package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/dpc/pkg/admin"
	"gopkg.in/yaml.v3"
)

type ControllerConfig struct {
	Identity IdentityConfig `yaml:"identity"`
	Platform PlatformConfig `yaml:"platform"`
	Server   ServerConfig   `yaml:"server"`
	Policy   PolicyConfig   `yaml:"policy"`
	Mediator MediatorConfig `yaml:"mediator"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type IdentityConfig struct {
	Package  string `yaml:"package"`
	Receiver string `yaml:"receiver"`
	// ActivationExplanation is shown when the controller asks to be activated.
	ActivationExplanation string `yaml:"activation_explanation"`
}

type PlatformConfig struct {
	DBPath    string          `yaml:"db_path"`
	Provision ProvisionConfig `yaml:"provision"`
}

// ProvisionConfig seeds ownership into the emulated platform at startup.
type ProvisionConfig struct {
	DeviceOwner   bool `yaml:"device_owner"`
	ProfileOwner  bool `yaml:"profile_owner"`
	ActivateAdmin bool `yaml:"activate_admin"`
}

type ServerConfig struct {
	Listen            string `yaml:"listen"`
	AdminToken        string `yaml:"admin_token"`
	AdminTokenFile    string `yaml:"admin_token_file"`
	CommandRateLimit  int    `yaml:"command_rate_limit"`
	CommandRateWindow int    `yaml:"command_rate_window_s"`
}

type PolicyConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

type MediatorConfig struct {
	JournalSize int `yaml:"journal_size"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans" json:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *ControllerConfig {
	return &ControllerConfig{
		Identity: IdentityConfig{
			Package:               "com.mdm.dpc",
			Receiver:              ".DeviceAdminReceiver",
			ActivationExplanation: "This app needs device admin permissions to manage the device.",
		},
		Platform: PlatformConfig{
			DBPath: "/var/lib/dpc/platform.db",
		},
		Server: ServerConfig{
			Listen:            "127.0.0.1:8087",
			CommandRateLimit:  30,
			CommandRateWindow: 60,
		},
		Policy: PolicyConfig{
			Watch: true,
		},
		Mediator: MediatorConfig{
			JournalSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from file with env var overrides
func Load(path string) (*ControllerConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if listen := os.Getenv("DPC_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if token := os.Getenv("DPC_ADMIN_TOKEN"); token != "" {
		cfg.Server.AdminToken = token
	}
	if dbPath := os.Getenv("DPC_DB_PATH"); dbPath != "" {
		cfg.Platform.DBPath = dbPath
	}
	if policyFile := os.Getenv("DPC_POLICY_FILE"); policyFile != "" {
		cfg.Policy.File = policyFile
	}
	if level := os.Getenv("DPC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if cfg.Server.AdminToken == "" && cfg.Server.AdminTokenFile == "" {
		if defaultPath := defaultTokenPath(path); defaultPath != "" {
			cfg.Server.AdminTokenFile = defaultPath
		}
	}

	return cfg, nil
}

func defaultTokenPath(configPath string) string {
	if configPath == "" {
		return ""
	}
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "admin.token")
}

// AdminIdentity builds the identity value handed to the controller core.
func (c *ControllerConfig) AdminIdentity() (admin.Identity, error) {
	return admin.NewIdentity(c.Identity.Package, c.Identity.Receiver)
}

// ResolveAdminToken returns the inline token or the trimmed contents of the
// token file. A missing token file yields an empty token.
func (c *ControllerConfig) ResolveAdminToken() (string, error) {
	if c.Server.AdminToken != "" {
		return c.Server.AdminToken, nil
	}
	if c.Server.AdminTokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Server.AdminTokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *ControllerConfig) Validate() error {
	if _, err := c.AdminIdentity(); err != nil {
		return ErrInvalidIdentity
	}
	if c.Platform.DBPath == "" {
		return ErrMissingDBPath
	}
	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return &Error{"server listen must be host:port"}
	}
	if c.Platform.Provision.DeviceOwner && c.Platform.Provision.ProfileOwner {
		return &Error{"provision either device_owner or profile_owner, not both"}
	}
	if c.Server.CommandRateLimit < 0 {
		c.Server.CommandRateLimit = 0
	}
	if c.Server.CommandRateWindow <= 0 {
		c.Server.CommandRateWindow = 60
	}
	if c.Mediator.JournalSize <= 0 {
		c.Mediator.JournalSize = 256
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

var (
	ErrInvalidIdentity = &Error{"identity package and receiver are required"}
	ErrMissingDBPath   = &Error{"platform db_path is required"}
	ErrMissingListen   = &Error{"server listen address is required"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
