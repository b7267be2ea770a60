package util

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const Name = "mangafedi"
const ConfigFileName = "config.yaml"

// ConfigDirEnv overrides the directory holding config.yaml and relative data
// files.
const ConfigDirEnv = "MANGAFEDI_CONFIG_DIR"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host         string
		HttpPort     int    `yaml:"httpPort"`
		SslDomain    string `yaml:"sslDomain"`
		WithAp       bool   `yaml:"withAp"`
		DbPath       string `yaml:"dbPath"`
		LogLevel     string `yaml:"logLevel"`
		Registration bool   `yaml:"registration"`
		KeyBits      int    `yaml:"keyBits"`
		AdminToken   string `yaml:"adminToken"`
	}
	Federation struct {
		WorkerConcurrency             int   `yaml:"workerConcurrency"`
		MaxOutboundPerDomainPerMinute int   `yaml:"maxOutboundPerDomainPerMinute"`
		DeliveryTimeoutSeconds        int   `yaml:"deliveryTimeoutSeconds"`
		MaxDeliveryAttempts           int   `yaml:"maxDeliveryAttempts"`
		BackoffMinutes                []int `yaml:"backoffMinutes"`
		MarkerTtlHours                int   `yaml:"markerTtlHours"`
	}
}

// ReadConf loads .env, then the yaml config (local file, user config dir or
// embedded defaults), then applies MANGAFEDI_* environment overrides.
func ReadConf() (*AppConfig, error) {
	return ReadConfFrom(ResolveDataPath(ConfigFileName))
}

// ConfigDir is MANGAFEDI_CONFIG_DIR, or mangafedi under the user config dir.
// It is created when missing.
func ConfigDir() (string, error) {
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("no config directory: %w", err)
		}
		dir = filepath.Join(base, Name)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ResolveDataPath maps a configured file name to a path. Absolute names and
// names present in the working directory are used as given; anything else
// lives in ConfigDir.
func ResolveDataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	dir, err := ConfigDir()
	if err != nil {
		log.Printf("Using %s from the working directory: %v", name, err)
		return name
	}
	return filepath.Join(dir, name)
}

func ReadConfFrom(configPath string) (*AppConfig, error) {
	_ = godotenv.Load(".env")

	c := &AppConfig{}

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := ConfigDir()
		if dirErr == nil {
			userConfigPath := filepath.Join(configDir, ConfigFileName)
			if _, statErr := os.Stat(userConfigPath); os.IsNotExist(statErr) {
				if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
					log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
				} else {
					log.Printf("Created default config file at %s", userConfigPath)
				}
			}
		}
	}

	// defaults first so a partial file only overrides what it names
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnv(c)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnv(c *AppConfig) {
	if v := os.Getenv("MANGAFEDI_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("MANGAFEDI_HTTPPORT"); v != "" {
		if port, err := strconv.Atoi(v); err != nil {
			log.Printf("Ignoring MANGAFEDI_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("MANGAFEDI_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if v := os.Getenv("MANGAFEDI_WITH_AP"); v != "" {
		c.Conf.WithAp = v == "true"
	}
	if v := os.Getenv("MANGAFEDI_DB_PATH"); v != "" {
		c.Conf.DbPath = v
	}
	if v := os.Getenv("MANGAFEDI_LOG_LEVEL"); v != "" {
		c.Conf.LogLevel = v
	}
	if v := os.Getenv("MANGAFEDI_REGISTRATION"); v != "" {
		c.Conf.Registration = v == "true"
	}
	if v := os.Getenv("MANGAFEDI_ADMIN_TOKEN"); v != "" {
		c.Conf.AdminToken = v
	}
	if v := os.Getenv("MANGAFEDI_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Federation.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("MANGAFEDI_MAX_OUTBOUND_PER_DOMAIN_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Federation.MaxOutboundPerDomainPerMinute = n
		}
	}
	if v := os.Getenv("MANGAFEDI_BACKOFF_MINUTES"); v != "" {
		var schedule []int
		for _, part := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				log.Printf("Ignoring MANGAFEDI_BACKOFF_MINUTES: %v", err)
				schedule = nil
				break
			}
			schedule = append(schedule, n)
		}
		if len(schedule) > 0 {
			c.Federation.BackoffMinutes = schedule
		}
	}
}

func (c *AppConfig) validate() error {
	if c.Conf.SslDomain == "" {
		return fmt.Errorf("config: sslDomain must be set")
	}
	if c.Conf.KeyBits < 2048 {
		return fmt.Errorf("config: keyBits must be at least 2048, got %d", c.Conf.KeyBits)
	}
	if len(c.Federation.BackoffMinutes) == 0 {
		return fmt.Errorf("config: backoffMinutes must not be empty")
	}
	for _, m := range c.Federation.BackoffMinutes {
		if m <= 0 {
			return fmt.Errorf("config: backoffMinutes entries must be positive, got %d", m)
		}
	}
	if c.Federation.WorkerConcurrency < 1 {
		c.Federation.WorkerConcurrency = 1
	}
	return nil
}

// BaseURL is the scheme and host every local actor identifier starts with.
func (c *AppConfig) BaseURL() string {
	return "https://" + c.Conf.SslDomain
}

func (c *AppConfig) BackoffSchedule() []time.Duration {
	schedule := make([]time.Duration, len(c.Federation.BackoffMinutes))
	for i, m := range c.Federation.BackoffMinutes {
		schedule[i] = time.Duration(m) * time.Minute
	}
	return schedule
}

func (c *AppConfig) DeliveryTimeout() time.Duration {
	if c.Federation.DeliveryTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Federation.DeliveryTimeoutSeconds) * time.Second
}

// MarkerTTL is how long Undo and Delete markers are kept for activities that
// arrive out of order.
func (c *AppConfig) MarkerTTL() time.Duration {
	if c.Federation.MarkerTtlHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Federation.MarkerTtlHours) * time.Hour
}

// ConfigureLogging sets the logrus level from the config.
func (c *AppConfig) ConfigureLogging() {
	level, err := log.ParseLevel(c.Conf.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
