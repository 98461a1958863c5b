// Package util provides common utilities for topomon.
package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Validator exposes the shared validator instance for request payloads.
func Validator() *validator.Validate {
	return validate
}

// SNMPConfig holds the default management credentials and per-query budget.
type SNMPConfig struct {
	Version        string        `mapstructure:"version" validate:"oneof=v1 v2c v3"`
	Community      string        `mapstructure:"community"`
	V3User         string        `mapstructure:"v3_user" validate:"required_if=Version v3"`
	V3AuthKey      string        `mapstructure:"v3_auth_key"`
	V3PrivKey      string        `mapstructure:"v3_priv_key"`
	Port           uint16        `mapstructure:"port" validate:"gt=0"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retries        int           `mapstructure:"retries" validate:"gte=0,lte=10"`
	MaxRepetitions uint32        `mapstructure:"max_repetitions" validate:"gt=0"`
	WalkMaxResults int           `mapstructure:"walk_max_results" validate:"gt=0"`
}

// PollConfig controls the periodic poll cycle.
type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	Concurrency int           `mapstructure:"concurrency" validate:"gt=0,lte=512"`
}

// DiscoveryConfig controls the subnet sweep loop.
type DiscoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	Subnets         []string      `mapstructure:"subnets" validate:"dive,cidrv4"`
	BatchSize       int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxHosts        int           `mapstructure:"max_hosts" validate:"gt=0"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	ProbesPerSecond float64       `mapstructure:"probes_per_second" validate:"gte=0"`
}

// NotifyConfig lists the external event destinations. Empty values disable
// the destination.
type NotifyConfig struct {
	ElasticsearchURL    string `mapstructure:"elasticsearch_url" validate:"omitempty,url"`
	ElasticsearchPrefix string `mapstructure:"elasticsearch_index_prefix"`
	GraylogAddr         string `mapstructure:"graylog_addr" validate:"omitempty,hostname_port"`
	DiscordWebhook      string `mapstructure:"discord_webhook" validate:"omitempty,url"`
	QueueSize           int    `mapstructure:"queue_size" validate:"gt=0"`
}

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFile  string `mapstructure:"log_file"`

	SNMP      SNMPConfig      `mapstructure:"snmp"`
	Poll      PollConfig      `mapstructure:"poll"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Notify    NotifyConfig    `mapstructure:"notify"`

	ReportOutputDir string `mapstructure:"report_output_dir"`
	WebPort         int    `mapstructure:"web_port" validate:"gte=0,lte=65535"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".topomon")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "topomon.log"),

		SNMP: SNMPConfig{
			Version:        "v2c",
			Community:      "public",
			Port:           161,
			Timeout:        5 * time.Second,
			Retries:        2,
			MaxRepetitions: 25,
			WalkMaxResults: 5000,
		},
		Poll: PollConfig{
			Interval:    5 * time.Minute,
			Concurrency: 20,
		},
		Discovery: DiscoveryConfig{
			Enabled:         false,
			Interval:        time.Hour,
			BatchSize:       20,
			MaxHosts:        256,
			ProbeTimeout:    2 * time.Second,
			ProbesPerSecond: 50,
		},
		Notify: NotifyConfig{
			ElasticsearchPrefix: "topomon-",
			QueueSize:           256,
		},

		ReportOutputDir: filepath.Join(dataDir, "reports"),
		WebPort:         8080,
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.GetViper())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		Warn("Failed to load .env: %v", err)
	}

	cfg := DefaultConfig()
	if dir := os.Getenv("TOPOMON_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfg.DataDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TOPOMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every leaf of cfg so AutomaticEnv can override
// keys that never appear in the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	var walk func(prefix string, rv reflect.Value)
	walk = func(prefix string, rv reflect.Value) {
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			key := rt.Field(i).Tag.Get("mapstructure")
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			fv := rv.Field(i)
			if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Duration(0)) {
				walk(key, fv)
				continue
			}
			v.SetDefault(key, fv.Interface())
		}
	}
	walk("", reflect.ValueOf(cfg).Elem())
}

// Validate checks field constraints and subnet syntax.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, s := range c.Discovery.Subnets {
		if _, _, err := net.ParseCIDR(s); err != nil {
			return fmt.Errorf("invalid config: discovery subnet %q: %w", s, err)
		}
	}
	return nil
}

// DiscoveryChanged reports whether the discovery loop must be restarted
// to move from c to next.
func (c *Config) DiscoveryChanged(next *Config) bool {
	a, b := c.Discovery, next.Discovery
	if a.Enabled != b.Enabled || a.Interval != b.Interval || a.BatchSize != b.BatchSize ||
		a.MaxHosts != b.MaxHosts || a.ProbeTimeout != b.ProbeTimeout || a.ProbesPerSecond != b.ProbesPerSecond {
		return true
	}
	if len(a.Subnets) != len(b.Subnets) {
		return true
	}
	for i := range a.Subnets {
		if a.Subnets[i] != b.Subnets[i] {
			return true
		}
	}
	return c.SNMP != next.SNMP
}

// WatchConfig reloads the config file on change and hands every valid
// result to onChange. Invalid edits are logged and ignored. Without a
// config file there is nothing to watch.
func WatchConfig(onChange func(*Config)) {
	if viper.ConfigFileUsed() == "" {
		Debug("No config file in use, runtime reload disabled")
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		Info("Config file changed: %s", e.Name)
		cfg, err := LoadConfig()
		if err != nil {
			Warn("Ignoring config change: %v", err)
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
