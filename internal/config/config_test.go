//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "BOT_MODE", "WEBHOOK_URL", "WEBHOOK_SECRET", "DATABASE_URL",
		"REDIS_URL", "AMQP_URL", "EVALUATOR_API_KEY", "STORAGE_BACKEND", "ADMIN_SECRET", "PORT", "CHAT_ID"} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, `
bot:
  token: "123:abc"
webhook:
  secret: "s3cret"
`)
	cfg, err := Load(p, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Mode != "webhook" {
		t.Errorf("expected default mode webhook, got %q", cfg.Bot.Mode)
	}
	if cfg.Webhook.Listen != ":8000" || cfg.Webhook.Path != "/webhook" {
		t.Errorf("unexpected webhook defaults: %+v", cfg.Webhook)
	}
	if cfg.Webhook.ProcessingTimeout != 5*time.Second {
		t.Errorf("expected 5s processing timeout, got %s", cfg.Webhook.ProcessingTimeout)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Dedup.Retention != 24*time.Hour {
		t.Errorf("expected 24h retention, got %s", cfg.Dedup.Retention)
	}
	o := cfg.Outbound
	if o.MaxAttempts != 5 || o.BaseDelay != 500*time.Millisecond || o.MaxDelay != 30*time.Second {
		t.Errorf("unexpected retry defaults: %+v", o)
	}
	if o.GlobalRPS != 30 || o.PerChatRPS != 1 {
		t.Errorf("unexpected rate defaults: %+v", o)
	}
	if cfg.Evaluator.Provider != "mock" || cfg.Tutor.LessonSize != 5 {
		t.Errorf("unexpected tutor defaults: %+v %+v", cfg.Evaluator, cfg.Tutor)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev flag to be carried into runtime config")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("WEBHOOK_SECRET", "env-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("CHAT_ID", "42")
	p := writeConfig(t, `
bot:
  token: "file-token"
webhook:
  secret: "file-secret"
  path: "hook"
`)
	cfg, err := Load(p, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Token != "env-token" || cfg.Webhook.Secret != "env-secret" {
		t.Errorf("env did not override file values: %+v %+v", cfg.Bot, cfg.Webhook)
	}
	if cfg.Webhook.Listen != ":9090" {
		t.Errorf("expected listen :9090, got %q", cfg.Webhook.Listen)
	}
	if cfg.Webhook.Path != "/hook" {
		t.Errorf("expected path to be rooted, got %q", cfg.Webhook.Path)
	}
	if len(cfg.Greeting.ChatIDs) != 1 || cfg.Greeting.ChatIDs[0] != 42 {
		t.Errorf("expected CHAT_ID to add a greeting target, got %v", cfg.Greeting.ChatIDs)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing token", "webhook:\n  secret: x\n", "bot.token"},
		{"missing secret", "bot:\n  token: t\n", "webhook.secret"},
		{"bad mode", "bot:\n  token: t\n  mode: carrier-pigeon\n", "bot.mode"},
		{"postgres without url", "bot:\n  token: t\n  mode: polling\nstorage:\n  backend: postgres\n", "database.url"},
		{"unknown backend", "bot:\n  token: t\n  mode: polling\nstorage:\n  backend: floppy\n", "storage.backend"},
		{"openai without key", "bot:\n  token: t\n  mode: polling\nevaluator:\n  provider: openai\n", "evaluator.api_key"},
		{"delay cap below base", "bot:\n  token: t\n  mode: polling\noutbound:\n  base_delay: 10s\n  max_delay: 1s\n", "max_delay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tc.body), false)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadWithoutFileUsesEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "t")
	t.Setenv("BOT_MODE", "polling")
	cfg, err := Load("", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Mode != "polling" {
		t.Errorf("expected polling mode, got %q", cfg.Bot.Mode)
	}
}

func TestLoadOneShotSkipsReceiverChecks(t *testing.T) {
	clearEnv(t)
	body := "bot:\n  token: t\n  register_webhook: true\n"
	if _, err := Load(writeConfig(t, body), false); err == nil {
		t.Fatal("serve config without webhook.secret must be rejected")
	}
	cfg, err := Load(writeConfig(t, body), false, OneShot())
	if err != nil {
		t.Fatalf("one-shot load: %v", err)
	}
	if cfg.Bot.Mode != "webhook" {
		t.Errorf("expected default webhook mode, got %q", cfg.Bot.Mode)
	}

	// shared checks still apply
	if _, err := Load(writeConfig(t, "webhook:\n  secret: x\n"), false, OneShot()); err == nil || !strings.Contains(err.Error(), "bot.token") {
		t.Fatalf("expected bot.token error, got %v", err)
	}
}
