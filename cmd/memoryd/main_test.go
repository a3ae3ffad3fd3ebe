package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/pkg/app"
)

const testConfig = `
version: "1"
modules:
  memory.sqlite: {}
  embedder.hashing:
    dimensions: 64
  gateway.http:
    bind: 127.0.0.1:0
    auth:
      bearer_token: super-secret-token
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setup(t *testing.T) (cfgPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "memoryd.yaml")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return cfgPath, filepath.Join(dir, "data")
}

// seed stores one exchange for alice through a fully assembled runtime.
func seed(t *testing.T, cfgPath, dataDir string) memory.Turn {
	t.Helper()
	cfg, _, err := app.LoadConfig(app.RunParams{ConfigPath: cfgPath, DataDir: dataDir})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		t.Fatal(err)
	}
	rt, err := app.Assemble(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer rt.Close()

	user := memory.NewTurn("alice", "s1", memory.RoleUser, "I maintain the billing service written in Go")
	reply := memory.NewTurn("alice", "s1", memory.RoleAssistant, "Understood, you maintain billing.")
	if err := rt.Orchestrator.UpdateAfterTurn(context.Background(), "alice", "s1", user, reply); err != nil {
		t.Fatalf("UpdateAfterTurn: %v", err)
	}
	return user
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"memoryd dev", "memory.sqlite", "gateway.http", "embedder.hashing"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCheck(t *testing.T) {
	cfgPath, dataDir := setup(t)
	out, err := execute(t, "config", "check", cfgPath, "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"Configuration OK", "memory.sqlite", "gateway.http", "memory.cron"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("version: \"2\"\nmodules:\n  memory.sqlite: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "check", path); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	cfgPath, dataDir := setup(t)
	out, err := execute(t, "config", "show", "-c", cfgPath, "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret-token") {
		t.Errorf("secret leaked:\n%s", out)
	}
	if !strings.Contains(out, "bearer_token") || !strings.Contains(out, "max_messages: 15") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRecall(t *testing.T) {
	cfgPath, dataDir := setup(t)
	user := seed(t, cfgPath, dataDir)

	out, err := execute(t, "recall", "-c", cfgPath, "--data-dir", dataDir,
		"--owner", "alice", "I maintain the billing service written in Go")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	var mc memory.MergedContext
	if err := json.Unmarshal([]byte(out), &mc); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(mc.RetrievedMemories) == 0 || mc.RetrievedMemories[0].Record.TurnID != user.ID {
		t.Errorf("retrieved = %+v", mc.RetrievedMemories)
	}

	rendered, err := execute(t, "recall", "-c", cfgPath, "--data-dir", dataDir,
		"--owner", "alice", "--render", "I maintain the billing service written in Go")
	if err != nil {
		t.Fatalf("recall --render: %v", err)
	}
	if !strings.Contains(rendered, "Relevant past context:") {
		t.Errorf("rendered prompt = %q", rendered)
	}

	if _, err := execute(t, "recall", "-c", cfgPath, "--data-dir", dataDir, "query"); err == nil {
		t.Error("recall without --owner should fail")
	}
}

func TestForget(t *testing.T) {
	cfgPath, dataDir := setup(t)
	user := seed(t, cfgPath, dataDir)

	out, err := execute(t, "forget", "-c", cfgPath, "--data-dir", dataDir, "--owner", "alice", "--turn", user.ID)
	if err != nil {
		t.Fatalf("forget turn: %v", err)
	}
	if !strings.Contains(out, "Deleted 1 records") {
		t.Errorf("forget turn output = %q", out)
	}

	out, err = execute(t, "forget", "-c", cfgPath, "--data-dir", dataDir, "--owner", "alice")
	if err != nil {
		t.Fatalf("forget owner: %v", err)
	}
	if !strings.Contains(out, "Deleted 1 records of owner alice") {
		t.Errorf("forget owner output = %q", out)
	}
}

func TestBackfill(t *testing.T) {
	cfgPath, dataDir := setup(t)
	seed(t, cfgPath, dataDir)

	out, err := execute(t, "backfill", "-c", cfgPath, "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if !strings.Contains(out, "Embedded 0 records") {
		t.Errorf("backfill output = %q", out)
	}

	if _, err := execute(t, "backfill", "-c", cfgPath, "--limit", "-1"); err == nil {
		t.Error("negative limit should fail")
	}
}
