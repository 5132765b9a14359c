package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_SCOUT_KEY", "sk-from-env")
	// Ambient overrides would stomp the file and default values.
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "")
	t.Setenv("DATADOG_SITE", "")
	t.Setenv("DD_SITE", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_SCOUT_KEY}\nlisten:\n  port: 9999\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Listen.Port != 9999 {
		t.Errorf("Port = %d", cfg.Listen.Port)
	}
	// Unset fields keep their defaults.
	if cfg.Datadog.Site != "datadoghq.com" {
		t.Errorf("Site = %q", cfg.Datadog.Site)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-override")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: sk-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Anthropic.APIKey != "sk-override" {
		t.Errorf("APIKey = %q, want env override", cfg.Anthropic.APIKey)
	}
}

func TestEnvAliasOrder(t *testing.T) {
	// The primary name wins over the vendor alias.
	t.Setenv("DATADOG_API_KEY", "primary")
	t.Setenv("DD_API_KEY", "alias")

	cfg := FromEnv()
	if cfg.Datadog.APIKey != "primary" {
		t.Errorf("APIKey = %q, want primary", cfg.Datadog.APIKey)
	}
}

func TestEnvAliasFallback(t *testing.T) {
	t.Setenv("DATADOG_API_KEY", "")
	t.Setenv("DD_API_KEY", "alias")

	cfg := FromEnv()
	if cfg.Datadog.APIKey != "alias" {
		t.Errorf("APIKey = %q, want alias", cfg.Datadog.APIKey)
	}
}

func TestIsTruthy(t *testing.T) {
	for _, s := range []string{"1", "true", "TRUE", "True", "yes", "YES", "on"} {
		if !isTruthy(s) {
			t.Errorf("isTruthy(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "false", "off", "no", "maybe"} {
		if isTruthy(s) {
			t.Errorf("isTruthy(%q) = true", s)
		}
	}
}

func TestIsConfigured(t *testing.T) {
	cfg := Default()

	if cfg.IsConfigured(IntegrationAnthropic) {
		t.Error("anthropic configured without key")
	}
	cfg.Anthropic.APIKey = "sk-test"
	if !cfg.IsConfigured(IntegrationAnthropic) {
		t.Error("anthropic not configured with key")
	}

	cfg.Datadog.APIKey = "dd-api"
	if cfg.IsConfigured(IntegrationDatadog) {
		t.Error("datadog configured without app key")
	}
	cfg.Datadog.AppKey = "dd-app"
	if !cfg.IsConfigured(IntegrationDatadog) {
		t.Error("datadog not configured with both keys")
	}

	cfg.SQS.Enabled = true
	cfg.SQS.Region = ""
	if cfg.IsConfigured(IntegrationSQS) {
		t.Error("sqs configured without region")
	}
	cfg.SQS.Region = "us-west-2"
	if !cfg.IsConfigured(IntegrationSQS) {
		t.Error("sqs not configured with region")
	}
}

func TestKubernetesRequiresKubeconfigOnDisk(t *testing.T) {
	cfg := Default()
	cfg.Kubernetes.Enabled = true
	cfg.Kubernetes.Kubeconfig = filepath.Join(t.TempDir(), "missing")

	if cfg.IsConfigured(IntegrationKubernetes) {
		t.Error("kubernetes configured with missing kubeconfig")
	}

	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("apiVersion: v1\nkind: Config\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Kubernetes.Kubeconfig = path
	if !cfg.IsConfigured(IntegrationKubernetes) {
		t.Error("kubernetes not configured with kubeconfig present")
	}

	cfg.Kubernetes.Enabled = false
	if cfg.IsConfigured(IntegrationKubernetes) {
		t.Error("kubernetes configured while disabled")
	}
}

func TestStatus(t *testing.T) {
	cfg := Default()
	cfg.Anthropic.APIKey = "sk-test"

	status := cfg.Status()
	if len(status) != 5 {
		t.Fatalf("len(status) = %d", len(status))
	}
	if !status["anthropic"] {
		t.Error("anthropic should report configured")
	}
	for _, name := range []string{"datadog", "pagerduty", "kubernetes", "sqs"} {
		if status[name] {
			t.Errorf("%s should report not configured", name)
		}
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" debug ", slog.LevelDebug},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Any(slog.LevelKey, LevelTrace)
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("value = %q, want TRACE", got.Value.String())
	}

	attr = slog.Any(slog.LevelKey, slog.LevelInfo)
	got = ReplaceLogLevelNames(nil, attr)
	if got.Value.Any() != slog.LevelInfo {
		t.Errorf("info level rewritten: %v", got.Value)
	}
}
