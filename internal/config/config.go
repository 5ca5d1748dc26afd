// Package config loads netsweep's configuration. Values come from built-in
// defaults, an optional YAML file and NETSWEEP_* environment variables, in
// increasing order of precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/discovery"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/scanning"
)

// EnvPrefix prefixes every environment override, e.g. NETSWEEP_DATABASE_PASSWORD.
const EnvPrefix = "NETSWEEP"

const (
	configDirPerm  = 0750
	configFilePerm = 0600
	maxPort        = 65535
)

// Config represents the complete netsweep configuration.
type Config struct {
	Database db.Config      `yaml:"database" json:"database" mapstructure:"database"`
	Scanning ScanningConfig `yaml:"scanning" json:"scanning" mapstructure:"scanning"`
	API      APIConfig      `yaml:"api" json:"api" mapstructure:"api"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule" mapstructure:"schedule"`
	Daemon   DaemonConfig   `yaml:"daemon" json:"daemon" mapstructure:"daemon"`
	Logging  logging.Config `yaml:"logging" json:"logging" mapstructure:"logging"`
}

// ScanningConfig holds sweep settings.
type ScanningConfig struct {
	// Worker pool shared by probing and port scanning
	Workers   int `yaml:"workers" json:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" json:"queue_size" mapstructure:"queue_size"`
	// Jobs started per second, 0 disables the limit
	RateLimit int `yaml:"rate_limit" json:"rate_limit" mapstructure:"rate_limit"`

	// Liveness probing: icmp, tcp, auto or nmap
	ProbeMethod  string        `yaml:"probe_method" json:"probe_method" mapstructure:"probe_method"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout" mapstructure:"probe_timeout"`
	ProbeRetries int           `yaml:"probe_retries" json:"probe_retries" mapstructure:"probe_retries"`
	Privileged   bool          `yaml:"privileged" json:"privileged" mapstructure:"privileged"`

	// Port scanning
	PortTimeout  time.Duration `yaml:"port_timeout" json:"port_timeout" mapstructure:"port_timeout"`
	Ports        string        `yaml:"ports" json:"ports" mapstructure:"ports"`
	PortsPerHost int           `yaml:"ports_per_host" json:"ports_per_host" mapstructure:"ports_per_host"`
	MaxSockets   int           `yaml:"max_sockets" json:"max_sockets" mapstructure:"max_sockets"`

	// Sweep limits
	MaxHosts     int           `yaml:"max_hosts" json:"max_hosts" mapstructure:"max_hosts"`
	ScanTimeout  time.Duration `yaml:"scan_timeout" json:"scan_timeout" mapstructure:"scan_timeout"`
	DefaultRange string        `yaml:"default_range" json:"default_range" mapstructure:"default_range"`

	// Enrichment
	DNSServer string               `yaml:"dns_server" json:"dns_server" mapstructure:"dns_server"`
	SNMP      discovery.SNMPConfig `yaml:"snmp" json:"snmp" mapstructure:"snmp"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host         string        `yaml:"host" json:"host" mapstructure:"host"`
	Port         int           `yaml:"port" json:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins" json:"cors_origins" mapstructure:"cors_origins"`
	// Scan-start requests per minute per client, 0 disables throttling
	ScanRateLimit int `yaml:"scan_rate_limit" json:"scan_rate_limit" mapstructure:"scan_rate_limit"`
	// URL encoded into the dashboard QR code; derived from the LAN address when empty
	PublicURL string `yaml:"public_url" json:"public_url" mapstructure:"public_url"`
	// bcrypt hashes of keys allowed to start scans; empty leaves scan start open
	APIKeyHashes []string `yaml:"api_key_hashes" json:"-" mapstructure:"api_key_hashes"`
}

// ScheduleConfig drives periodic sweeps.
type ScheduleConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Cron    string   `yaml:"cron" json:"cron" mapstructure:"cron"`
	Ranges  []string `yaml:"ranges" json:"ranges" mapstructure:"ranges"`
}

// DaemonConfig controls the serve process.
type DaemonConfig struct {
	// Written on start and removed on exit; empty disables it
	PIDFile         string        `yaml:"pid_file" json:"pid_file" mapstructure:"pid_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	database := db.DefaultConfig()
	database.Database = "netsweep"
	database.Username = "netsweep"

	return &Config{
		Database: database,
		Scanning: ScanningConfig{
			Workers:      64,
			QueueSize:    256,
			RateLimit:    0,
			ProbeMethod:  discovery.MethodAuto,
			ProbeTimeout: time.Second,
			ProbeRetries: 1,
			Privileged:   false,
			PortTimeout:  500 * time.Millisecond,
			Ports:        scanning.FormatPorts(scanning.DefaultPorts),
			PortsPerHost: 16,
			MaxSockets:   256,
			MaxHosts:     discovery.DefaultMaxHosts,
			ScanTimeout:  10 * time.Minute,
			DefaultRange: "192.168.1.0/24",
			SNMP: discovery.SNMPConfig{
				Enabled:   false,
				Community: "public",
				Port:      161,
				Timeout:   time.Second,
			},
		},
		API: APIConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  11 * time.Minute,
			IdleTimeout:   60 * time.Second,
			CORSOrigins:   []string{"*"},
			ScanRateLimit: 6,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "@every 30m",
		},
		Daemon: DaemonConfig{
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads configuration from path, or from ./config.yaml or
// /etc/netsweep/config.yaml when path is empty. A missing file leaves the
// defaults in place. Environment variables override file values.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes an already-populated viper instance. The CLI uses this
// so flags bound to the same instance take effect.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewViper returns a viper instance with netsweep's defaults, environment
// binding and, if found, the config file loaded.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return v, nil
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/netsweep")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && stderrors.As(err, &notFound) {
			return v, nil
		}
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}
	return v, nil
}

// setDefaults registers every key of cfg with viper. AutomaticEnv only
// resolves keys viper already knows, so this is what makes
// NETSWEEP_SCANNING_WORKERS and friends work without a config file.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to encode defaults", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to decode defaults", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			walkDefaults(v, full, nested)
			continue
		}
		v.SetDefault(full, value)
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateScanning(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if c.Daemon.ShutdownTimeout <= 0 {
		return errors.ErrConfigInvalid("daemon.shutdown_timeout", c.Daemon.ShutdownTimeout)
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch {
	case c.Database.Host == "":
		return errors.ErrConfigMissing("database.host")
	case c.Database.Database == "":
		return errors.ErrConfigMissing("database.database")
	case c.Database.Username == "":
		return errors.ErrConfigMissing("database.username")
	case c.Database.Port <= 0 || c.Database.Port > maxPort:
		return errors.ErrConfigInvalid("database.port", c.Database.Port)
	}
	return nil
}

func (c *Config) validateScanning() error {
	s := &c.Scanning
	if s.Workers <= 0 {
		return errors.ErrConfigInvalid("scanning.workers", s.Workers)
	}
	if s.QueueSize < 0 {
		return errors.ErrConfigInvalid("scanning.queue_size", s.QueueSize)
	}
	if s.RateLimit < 0 {
		return errors.ErrConfigInvalid("scanning.rate_limit", s.RateLimit)
	}

	switch s.ProbeMethod {
	case discovery.MethodICMP, discovery.MethodTCP, discovery.MethodAuto, discovery.MethodNmap:
	default:
		return errors.ErrConfigInvalid("scanning.probe_method", s.ProbeMethod)
	}
	if s.ProbeTimeout <= 0 {
		return errors.ErrConfigInvalid("scanning.probe_timeout", s.ProbeTimeout)
	}
	if s.ProbeRetries < 0 {
		return errors.ErrConfigInvalid("scanning.probe_retries", s.ProbeRetries)
	}

	if s.PortTimeout <= 0 {
		return errors.ErrConfigInvalid("scanning.port_timeout", s.PortTimeout)
	}
	if _, err := scanning.ParsePorts(s.Ports); err != nil {
		return errors.NewConfigFieldError(errors.CodeValidation, err.Error(), "scanning.ports", s.Ports)
	}
	if s.PortsPerHost <= 0 {
		return errors.ErrConfigInvalid("scanning.ports_per_host", s.PortsPerHost)
	}
	if s.MaxSockets <= 0 {
		return errors.ErrConfigInvalid("scanning.max_sockets", s.MaxSockets)
	}

	if s.MaxHosts <= 0 {
		return errors.ErrConfigInvalid("scanning.max_hosts", s.MaxHosts)
	}
	if s.ScanTimeout <= 0 {
		return errors.ErrConfigInvalid("scanning.scan_timeout", s.ScanTimeout)
	}
	if _, err := discovery.ExpandRange(s.DefaultRange, s.MaxHosts); err != nil {
		return errors.NewConfigFieldError(errors.CodeValidation, err.Error(), "scanning.default_range", s.DefaultRange)
	}

	if s.DNSServer != "" {
		if _, _, err := net.SplitHostPort(s.DNSServer); err != nil && net.ParseIP(s.DNSServer) == nil {
			return errors.ErrConfigInvalid("scanning.dns_server", s.DNSServer)
		}
	}
	if s.SNMP.Enabled && (s.SNMP.Port <= 0 || s.SNMP.Port > maxPort) {
		return errors.ErrConfigInvalid("scanning.snmp.port", s.SNMP.Port)
	}
	return nil
}

func (c *Config) validateAPI() error {
	a := &c.API
	if a.Port <= 0 || a.Port > maxPort {
		return errors.ErrConfigInvalid("api.port", a.Port)
	}
	// Scan start answers only once the sweep ends.
	if a.WriteTimeout > 0 && a.WriteTimeout <= c.Scanning.ScanTimeout {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"api.write_timeout must exceed scanning.scan_timeout", "api.write_timeout", a.WriteTimeout)
	}
	if a.ScanRateLimit < 0 {
		return errors.ErrConfigInvalid("api.scan_rate_limit", a.ScanRateLimit)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if !c.Schedule.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return errors.NewConfigFieldError(errors.CodeValidation, err.Error(), "schedule.cron", c.Schedule.Cron)
	}
	if len(c.Schedule.Ranges) == 0 {
		return errors.ErrConfigMissing("schedule.ranges")
	}
	for _, r := range c.Schedule.Ranges {
		if _, err := discovery.ExpandRange(r, c.Scanning.MaxHosts); err != nil {
			return errors.NewConfigFieldError(errors.CodeValidation, err.Error(), "schedule.ranges", r)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}
	return nil
}

// PortList returns the parsed scanning.ports list.
func (s *ScanningConfig) PortList() []int {
	ports, err := scanning.ParsePorts(s.Ports)
	if err != nil || len(ports) == 0 {
		return scanning.DefaultPorts
	}
	return ports
}

// Address returns host:port for the HTTP listener.
func (a *APIConfig) Address() string {
	return net.JoinHostPort(a.Host, fmt.Sprint(a.Port))
}
