//go:build !integration

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "greet": false, "set-webhook": false, "admin-token": false, "version": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestGreetRequiresChats(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("CHAT_ID", "")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"greet"})
	if err := root.Execute(); err == nil {
		t.Fatal("greet without token or chats must fail")
	}
}

func TestGreetDoesNotNeedWebhookSecret(t *testing.T) {
	for _, k := range []string{"BOT_TOKEN", "BOT_MODE", "WEBHOOK_SECRET", "CHAT_ID", "AMQP_URL", "REDIS_URL", "STORAGE_BACKEND"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "bot:\n  mode: webhook\n  dry_run: true\ngreeting:\n  text: Buongiorno\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"greet", "--config", path, "--chat", "5"})
	if err := root.Execute(); err != nil {
		t.Fatalf("greet: %v", err)
	}
	if !strings.Contains(out.String(), "1 chat(s)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
