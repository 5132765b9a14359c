package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, []string{"version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "version:") {
		t.Errorf("version output: %s", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out.String()), "{") {
		t.Errorf("expected JSON output, got: %s", out.String())
	}
}

func TestRunNoCommandPrintsUsage(t *testing.T) {
	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Usage: scout") {
		t.Errorf("usage output: %s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v", err)
	}
}

func TestRunUnknownOutputFormat(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"-o", "yaml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("err = %v", err)
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"ask"})
	if err == nil || !strings.Contains(err.Error(), "usage: scout ask") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadConfigFallsBackToEnv(t *testing.T) {
	// Run from an empty directory so no config.yaml is discovered.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, path, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if path != "(environment)" {
		t.Errorf("path = %q", path)
	}
	if cfg == nil {
		t.Fatal("nil config")
	}
}

func TestLoadConfigExplicitFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "listen:\n  port: 9090\nanthropic:\n  api_key: sk-test\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, loaded, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != path {
		t.Errorf("loaded path = %q", loaded)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d", cfg.Listen.Port)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Anthropic.APIKey)
	}
}
