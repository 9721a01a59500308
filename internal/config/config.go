package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// workspaceNameRegex validates workspace names.
// Names become part of a DNS label ({name}-{owner}.{domain}), so they are kept
// short and restricted to lowercase letters, digits and hyphens.
var workspaceNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}$`)

// ownerRegex validates owner identifiers, which double as the owner subdomain.
var ownerRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}$`)

// ValidateWorkspaceName checks if a workspace name is valid.
// Valid names:
//   - Start with a lowercase letter or digit
//   - Contain only lowercase letters, digits, or hyphens
//   - Are between 1 and 31 characters long
//   - Do not end with a hyphen
func ValidateWorkspaceName(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name cannot be empty")
	}
	if !workspaceNameRegex.MatchString(name) || strings.HasSuffix(name, "-") {
		return fmt.Errorf("invalid workspace name %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, or hyphens, and be at most 31 characters", name)
	}
	return nil
}

// ValidateOwner checks if an owner identifier is usable as a subdomain.
func ValidateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if !ownerRegex.MatchString(owner) || strings.HasSuffix(owner, "-") {
		return fmt.Errorf("invalid owner %q: must be a lowercase DNS label of at most 31 characters", owner)
	}
	return nil
}

const (
	DefaultConfigDir   = "/etc/forage-ws"
	DefaultStateDir    = "/var/lib/forage-ws"
	DefaultHomesDir    = "/srv/forage-ws/homes"
	DefaultUnitsDir    = "/etc/systemd/system"
	DefaultRoutesPath  = "/etc/traefik/dynamic/forage-ws.yaml"
	DefaultUnitPrefix  = "forage-ws-"
	DefaultUserPrefix  = "fws-"
	DefaultPortFrom    = 8001
	DefaultPortTo      = 8100
	DefaultExecStart   = "/usr/bin/code-server --bind-addr {{.BindAddr}} --auth password {{.WorkingDir}}"
	ConfigFileName     = "config.toml"
	MinCredentialBytes = 16
)

// Duration wraps time.Duration so it can be written as "10s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PortRange is an inclusive port range.
type PortRange struct {
	From int `toml:"from"`
	To   int `toml:"to"`
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	return r.To - r.From + 1
}

// Contains reports whether port lies inside the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.From && port <= r.To
}

// AccountsConfig controls OS identity creation.
type AccountsConfig struct {
	HomesDir        string `toml:"homes_dir"`
	Shell           string `toml:"shell"`
	Prefix          string `toml:"prefix"`
	CredentialBytes int    `toml:"credential_bytes"`
}

// ServiceConfig controls the per-workspace systemd unit.
type ServiceConfig struct {
	// ExecStart is a Go template rendered per workspace. Available fields:
	// .BindAddr, .Port, .WorkingDir, .User.
	ExecStart    string   `toml:"exec_start"`
	UnitsDir     string   `toml:"units_dir"`
	EnvDir       string   `toml:"env_dir"`
	UnitPrefix   string   `toml:"unit_prefix"`
	StartTimeout Duration `toml:"start_timeout"`
	PollInterval Duration `toml:"poll_interval"`
}

// RoutesConfig controls the reverse proxy dynamic configuration file.
type RoutesConfig struct {
	Path         string `toml:"path"`
	EntryPoint   string `toml:"entry_point"`
	CertResolver string `toml:"cert_resolver"`
}

// QuotaConfig maps plans to disk quotas.
type QuotaConfig struct {
	// Filesystem is the mount point passed to setquota. Empty disables enforcement.
	Filesystem string            `toml:"filesystem"`
	Plans      map[string]string `toml:"plans"`
}

// RetryConfig bounds immediate retries of transient step failures.
type RetryConfig struct {
	Attempts int      `toml:"attempts"`
	Backoff  Duration `toml:"backoff"`
}

// OrchestratorConfig bounds provisioning concurrency and duration.
type OrchestratorConfig struct {
	MaxConcurrent    int      `toml:"max_concurrent"`
	OperationTimeout Duration `toml:"operation_timeout"`
	MonitorInterval  Duration `toml:"monitor_interval"`
	MetricsAddr      string   `toml:"metrics_addr"`

	// LeaseTTL is how long a workspace lease outlives the last renewal of a
	// crashed orchestrator process.
	LeaseTTL Duration `toml:"lease_ttl"`
}

// HostConfig represents the host configuration from config.toml
type HostConfig struct {
	BaseDomain   string             `toml:"base_domain"`
	StateDir     string             `toml:"state_dir"`
	DatabaseURL  string             `toml:"database_url"`
	Ports        PortRange          `toml:"ports"`
	Accounts     AccountsConfig     `toml:"accounts"`
	Service      ServiceConfig      `toml:"service"`
	Routes       RoutesConfig       `toml:"routes"`
	Quota        QuotaConfig        `toml:"quota"`
	Retry        RetryConfig        `toml:"retry"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
}

// DefaultHostConfig returns a config with every field set to its default.
func DefaultHostConfig() *HostConfig {
	return &HostConfig{
		BaseDomain:  "localhost",
		StateDir:    DefaultStateDir,
		DatabaseURL: "sqlite:" + filepath.Join(DefaultStateDir, "forage-ws.db"),
		Ports:       PortRange{From: DefaultPortFrom, To: DefaultPortTo},
		Accounts: AccountsConfig{
			HomesDir:        DefaultHomesDir,
			Shell:           "/usr/sbin/nologin",
			Prefix:          DefaultUserPrefix,
			CredentialBytes: 24,
		},
		Service: ServiceConfig{
			ExecStart:    DefaultExecStart,
			UnitsDir:     DefaultUnitsDir,
			EnvDir:       filepath.Join(DefaultConfigDir, "env"),
			UnitPrefix:   DefaultUnitPrefix,
			StartTimeout: Duration{10 * time.Second},
			PollInterval: Duration{250 * time.Millisecond},
		},
		Routes: RoutesConfig{
			Path:       DefaultRoutesPath,
			EntryPoint: "websecure",
		},
		Quota: QuotaConfig{
			Plans: map[string]string{
				"free":       "5G",
				"pro":        "20G",
				"enterprise": "100G",
			},
		},
		Retry: RetryConfig{
			Attempts: 3,
			Backoff:  Duration{200 * time.Millisecond},
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent:    4,
			OperationTimeout: Duration{2 * time.Minute},
			MonitorInterval:  Duration{30 * time.Second},
			MetricsAddr:      "127.0.0.1:9464",
			LeaseTTL:         Duration{30 * time.Second},
		},
	}
}

// Validate checks that the HostConfig is valid.
func (c *HostConfig) Validate() error {
	if c.BaseDomain == "" {
		return fmt.Errorf("base_domain is required")
	}
	if strings.ContainsAny(c.BaseDomain, "/ :") {
		return fmt.Errorf("invalid base_domain %q", c.BaseDomain)
	}
	if c.Ports.From < 1 || c.Ports.To > 65535 {
		return fmt.Errorf("ports must be within 1-65535 (got %d-%d)", c.Ports.From, c.Ports.To)
	}
	if c.Ports.From > c.Ports.To {
		return fmt.Errorf("ports.from (%d) must not exceed ports.to (%d)", c.Ports.From, c.Ports.To)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if !filepath.IsAbs(c.Accounts.HomesDir) {
		return fmt.Errorf("accounts.homes_dir must be an absolute path (got %q)", c.Accounts.HomesDir)
	}
	if c.Accounts.Prefix == "" {
		return fmt.Errorf("accounts.prefix is required")
	}
	if c.Accounts.CredentialBytes < MinCredentialBytes {
		return fmt.Errorf("accounts.credential_bytes must be at least %d (got %d)", MinCredentialBytes, c.Accounts.CredentialBytes)
	}
	if c.Service.ExecStart == "" {
		return fmt.Errorf("service.exec_start is required")
	}
	if !filepath.IsAbs(c.Service.UnitsDir) || !filepath.IsAbs(c.Service.EnvDir) {
		return fmt.Errorf("service.units_dir and service.env_dir must be absolute paths")
	}
	if c.Service.StartTimeout.Duration <= 0 {
		return fmt.Errorf("service.start_timeout must be positive")
	}
	if c.Routes.Path == "" {
		return fmt.Errorf("routes.path is required")
	}
	switch strings.ToLower(filepath.Ext(c.Routes.Path)) {
	case ".yaml", ".yml", ".toml":
	default:
		return fmt.Errorf("routes.path must end in .yaml, .yml or .toml (got %q)", c.Routes.Path)
	}
	if len(c.Quota.Plans) == 0 {
		return fmt.Errorf("at least one quota plan is required")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("orchestrator.max_concurrent must be at least 1")
	}
	if c.Orchestrator.OperationTimeout.Duration <= 0 || c.Orchestrator.MonitorInterval.Duration <= 0 {
		return fmt.Errorf("orchestrator.operation_timeout and orchestrator.monitor_interval must be positive")
	}
	if c.Orchestrator.LeaseTTL.Duration < time.Second {
		return fmt.Errorf("orchestrator.lease_ttl must be at least 1s")
	}
	return nil
}

// Paths holds the configured paths
type Paths struct {
	ConfigDir string
	StateDir  string
	AuditDir  string
}

// DefaultPaths returns the default path configuration
func DefaultPaths() *Paths {
	return &Paths{
		ConfigDir: DefaultConfigDir,
		StateDir:  DefaultStateDir,
		AuditDir:  filepath.Join(DefaultStateDir, "audit"),
	}
}

// LoadHostConfig loads the host configuration from config.toml in configDir.
// Fields missing from the file keep their defaults.
func LoadHostConfig(configDir string) (*HostConfig, error) {
	return LoadHostConfigFile(filepath.Join(configDir, ConfigFileName))
}

// LoadHostConfigFile loads the host configuration from an explicit path.
func LoadHostConfigFile(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host config: %w", err)
	}

	cfg := DefaultHostConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in host config: %v", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host config: %w", err)
	}

	return cfg, nil
}

// WriteHostConfig writes cfg to path as TOML.
func WriteHostConfig(path string, cfg *HostConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open host config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode host config: %w", err)
	}
	return nil
}
