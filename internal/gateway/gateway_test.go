package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
)

func mustYAMLNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(doc.Content) == 0 {
		t.Fatal("empty yaml document")
	}
	return doc.Content[0]
}

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Gateway{}).ModuleInfo()
	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second || g.config.WriteTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v", g.config.ReadTimeout, g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
read_timeout: 5s
max_body_bytes: 4096
audit_log: "off"
auth:
  bearer_token: "my-token"
rate_limit:
  writes_per_min: 10
`)
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if g.config.Bind != "0.0.0.0:9090" || g.config.ReadTimeout != 5*time.Second {
		t.Errorf("config = %+v", g.config)
	}
	if g.config.Auth.BearerToken != "my-token" || g.config.RateLimit.WritesPerMin != 10 {
		t.Errorf("auth/rate limit not decoded: %+v", g.config)
	}
	if g.config.MaxBodyBytes != 4096 || g.config.AuditLog != "off" {
		t.Errorf("body/audit not decoded: %+v", g.config)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"loopback without auth", Config{Bind: "127.0.0.1:0"}, false},
		{"localhost without auth", Config{Bind: "localhost:8080"}, false},
		{"public without auth", Config{Bind: "0.0.0.0:8080"}, true},
		{"public with auth", Config{Bind: "0.0.0.0:8080", Auth: AuthConfig{BearerToken: "t"}}, false},
		{"bad bind", Config{Bind: "nonsense"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: tt.cfg}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_AuditLogFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := &Gateway{}
	if err := g.Provision(core.NewAppContext(nil, dir)); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	want := filepath.Join(dir, "audit.jsonl")
	if g.config.AuditLog != want {
		t.Errorf("AuditLog = %q, want %q", g.config.AuditLog, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("audit log not created: %v", err)
	}
	if err := g.Stop(t.Context()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestGateway_StartRequiresOrchestrator(t *testing.T) {
	t.Parallel()

	g := &Gateway{config: Config{Bind: "127.0.0.1:0", AuditLog: "off"}}
	if err := g.Provision(core.NewAppContext(nil, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Start(); err == nil {
		_ = g.Stop(t.Context())
		t.Fatal("Start without orchestrator should fail")
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, Config{Bind: "127.0.0.1:0", AuditLog: "off"}, nil)
	if err := tg.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tg.Stop(t.Context()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
