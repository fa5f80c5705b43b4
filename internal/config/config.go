package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

// Environment variables that override the file.
const (
	EnvHost     = "ZABBIX_HOST"
	EnvUsername = "ZABBIX_USERNAME"
	EnvPassword = "ZABBIX_PASSWORD"
	EnvUseTLS   = "ZABBIX_USE_TLS"
	EnvLogLevel = "ZABBIX_PROBLEMS_LOG_LEVEL"
)

type Config struct {
	Zabbix  ZabbixConfig   `yaml:"zabbix"`
	Monitor MonitorConfig  `yaml:"monitor"`
	Server  ServerConfig   `yaml:"server"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Log     LogConfig      `yaml:"log"`
	Sensors []SensorConfig `yaml:"sensors"`
}

type ZabbixConfig struct {
	Host               string        `yaml:"host"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	UseTLS             bool          `yaml:"use_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

type MonitorConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SensorConfig declares one sensor. Tags is a comma-separated expression
// such as "component:network, scope:availability".
type SensorConfig struct {
	Name string `yaml:"name"`
	Tags string `yaml:"tags"`
}

// TagList parses the tag expression.
func (s SensorConfig) TagList() []string {
	return problem.ParseTags(s.Tags)
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func Default() *Config {
	return &Config{
		Zabbix: ZabbixConfig{
			Host:     "zabbix",
			Username: "Admin",
			Password: "zabbix",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval:      3 * time.Second,
			FailureThreshold:  3,
			SnapshotInterval:  10 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8123,
		},
		Metrics: MetricsConfig{Enabled: true},
		Log:     LogConfig{Level: "info"},
		Sensors: []SensorConfig{
			{Name: "network", Tags: "component:network"},
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path uses the defaults.
//
// Overrides come from the process environment first, then from envFiles.
// With no envFiles, a .env in the working directory is used if present.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// A file that lists sensors replaces the default sensor.
		cfg.Sensors = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if cfg.Sensors == nil {
			cfg.Sensors = Default().Sensors
		}
	}

	lookup, err := envLookup(envFiles)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envLookup(files []string) (func(string) (string, bool), error) {
	fileVars := map[string]string{}
	optional := len(files) == 0
	if optional {
		files = []string{".env"}
	}
	for _, f := range files {
		vars, err := godotenv.Read(f)
		if err != nil {
			if optional && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: read env file %s: %w", f, err)
		}
		for k, v := range vars {
			if _, seen := fileVars[k]; !seen {
				fileVars[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Zabbix.Host = v
	}
	if v, ok := lookup(EnvUsername); ok && v != "" {
		c.Zabbix.Username = v
	}
	if v, ok := lookup(EnvPassword); ok {
		c.Zabbix.Password = v
	}
	if v, ok := lookup(EnvUseTLS); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvUseTLS, v, err)
		}
		c.Zabbix.UseTLS = b
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Zabbix.Host) == "" {
		errs = append(errs, errors.New("zabbix.host is required"))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval))
	}
	if c.Monitor.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.snapshot_interval must be positive, got %s", c.Monitor.SnapshotInterval))
	}
	if c.Monitor.BroadcastThrottle < 0 {
		errs = append(errs, fmt.Errorf("monitor.broadcast_throttle must not be negative, got %s", c.Monitor.BroadcastThrottle))
	}
	if c.Monitor.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("monitor.failure_threshold must not be negative, got %d", c.Monitor.FailureThreshold))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	seen := map[string]bool{}
	for i, s := range c.Sensors {
		name := strings.TrimSpace(s.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("sensors[%d]: name is required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("sensors[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if len(s.TagList()) == 0 {
			errs = append(errs, fmt.Errorf("sensors[%d] %q: tags %q contain no tag", i, name, s.Tags))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
