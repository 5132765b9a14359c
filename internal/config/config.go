// Package config handles Scout configuration loading and the capability
// gate that decides which integrations are usable.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Integration identifies one of the fixed external backends.
type Integration string

const (
	IntegrationAnthropic  Integration = "anthropic"
	IntegrationDatadog    Integration = "datadog"
	IntegrationPagerDuty  Integration = "pagerduty"
	IntegrationKubernetes Integration = "kubernetes"
	IntegrationSQS        Integration = "sqs"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/scout/config.yaml, /etc/scout/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scout", "config.yaml"))
	}

	paths = append(paths, "/etc/scout/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Scout configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Datadog    DatadogConfig    `yaml:"datadog"`
	PagerDuty  PagerDutyConfig  `yaml:"pagerduty"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	SQS        SQSConfig        `yaml:"sqs"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Agent      AgentConfig      `yaml:"agent"`
	ArchiveDB  string           `yaml:"archive_db"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines the language backbone settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DatadogConfig defines the APM tracing backend settings.
type DatadogConfig struct {
	APIKey string `yaml:"api_key"`
	AppKey string `yaml:"app_key"`
	Site   string `yaml:"site"` // e.g. datadoghq.com, datadoghq.eu
}

// PagerDutyConfig defines the incident backend settings.
type PagerDutyConfig struct {
	APIKey string `yaml:"api_key"`
}

// KubernetesConfig defines the cluster introspection settings.
// The integration is usable only when Enabled is true and the
// kubeconfig file exists on local disk.
type KubernetesConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Kubeconfig string `yaml:"kubeconfig"`
}

// SQSConfig defines the queue inspection settings. Credentials are
// optional; when absent the AWS SDK falls back to its default chain
// (shared config, instance profile).
type SQSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Profile         string `yaml:"profile"`
}

// MQTTConfig defines the optional ops-status publisher.
type MQTTConfig struct {
	Broker             string `yaml:"broker"` // e.g. mqtt://broker:1883; empty disables
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DeviceName         string `yaml:"device_name"`
	PublishIntervalSec int    `yaml:"publish_interval_sec"`
}

// AgentConfig defines turn controller limits.
type AgentConfig struct {
	// MaxToolRounds caps tool-call rounds per turn. A misbehaving model
	// that keeps requesting tools fails the turn instead of looping forever.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// Load reads configuration from a YAML file, expands environment
// variables in its contents, and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// FromEnv builds a configuration purely from environment variables.
// Used when no config file is present; every integration can be wired
// without one.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Datadog: DatadogConfig{
			Site: "datadoghq.com",
		},
		Kubernetes: KubernetesConfig{
			Kubeconfig: defaultKubeconfigPath(),
		},
		SQS: SQSConfig{
			Region: "us-east-1",
		},
		MQTT: MQTTConfig{
			DeviceName:         "scout",
			PublishIntervalSec: 60,
		},
		Agent: AgentConfig{
			MaxToolRounds: 25,
		},
	}
}

func defaultKubeconfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}

// applyEnv overlays environment variables onto the loaded config.
// Primary names are checked first, then the common vendor aliases.
func (c *Config) applyEnv() {
	setFromEnv(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY", "CLAUDE_API_KEY")
	setFromEnv(&c.Anthropic.Model, "CLAUDE_MODEL")

	setFromEnv(&c.Datadog.APIKey, "DATADOG_API_KEY", "DD_API_KEY")
	setFromEnv(&c.Datadog.AppKey, "DATADOG_APP_KEY", "DD_APP_KEY")
	setFromEnv(&c.Datadog.Site, "DATADOG_SITE", "DD_SITE")

	setFromEnv(&c.PagerDuty.APIKey, "PAGERDUTY_API_KEY")

	setFromEnv(&c.Kubernetes.Kubeconfig, "KUBECONFIG")
	if v := os.Getenv("K8S_ENABLED"); v != "" {
		c.Kubernetes.Enabled = isTruthy(v)
	}

	setFromEnv(&c.SQS.Region, "AWS_REGION")
	setFromEnv(&c.SQS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setFromEnv(&c.SQS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setFromEnv(&c.SQS.Profile, "AWS_PROFILE")
	if v := os.Getenv("SQS_ENABLED"); v != "" {
		c.SQS.Enabled = isTruthy(v)
	}

	setFromEnv(&c.MQTT.Broker, "MQTT_BROKER")
	setFromEnv(&c.LogLevel, "SCOUT_LOG_LEVEL")
}

func setFromEnv(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

func isTruthy(s string) bool {
	switch s {
	case "1", "true", "TRUE", "True", "yes", "YES", "on":
		return true
	}
	return false
}

// IsConfigured reports whether an integration has enough configuration
// to offer its tools. It performs no network calls; the only side-free
// check beyond env values is the kubeconfig file existence test.
// Consulted at registry build time and for status reporting, never
// mid-turn.
func (c *Config) IsConfigured(i Integration) bool {
	switch i {
	case IntegrationAnthropic:
		return c.Anthropic.APIKey != ""
	case IntegrationDatadog:
		return c.Datadog.APIKey != "" && c.Datadog.AppKey != ""
	case IntegrationPagerDuty:
		return c.PagerDuty.APIKey != ""
	case IntegrationKubernetes:
		if !c.Kubernetes.Enabled || c.Kubernetes.Kubeconfig == "" {
			return false
		}
		_, err := os.Stat(c.Kubernetes.Kubeconfig)
		return err == nil
	case IntegrationSQS:
		return c.SQS.Enabled && c.SQS.Region != ""
	}
	return false
}

// Status returns the capability flags for every integration.
func (c *Config) Status() map[string]bool {
	return map[string]bool{
		string(IntegrationAnthropic):  c.IsConfigured(IntegrationAnthropic),
		string(IntegrationDatadog):    c.IsConfigured(IntegrationDatadog),
		string(IntegrationPagerDuty):  c.IsConfigured(IntegrationPagerDuty),
		string(IntegrationKubernetes): c.IsConfigured(IntegrationKubernetes),
		string(IntegrationSQS):        c.IsConfigured(IntegrationSQS),
	}
}
