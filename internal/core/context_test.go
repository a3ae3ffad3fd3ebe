package core

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// repoModule stands in for a repository module: it reads a path from its
// config and publishes itself as a service.
type repoModule struct {
	Path string `yaml:"path"`

	provisionErr error
	validateErr  error
	configured   bool
	provisioned  *AppContext
}

func (m *repoModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: "memory.fake", New: func() Module {
		return &repoModule{provisionErr: m.provisionErr, validateErr: m.validateErr}
	}}
}

func (m *repoModule) Configure(node *yaml.Node) error {
	m.configured = true
	return node.Decode(m)
}

func (m *repoModule) Provision(ctx *AppContext) error {
	if m.provisionErr != nil {
		return m.provisionErr
	}
	m.provisioned = ctx
	if m.Path == "" {
		m.Path = ctx.DataDir + "/fake.db"
	}
	ctx.RegisterService("ltm.repository", m)
	return nil
}

func (m *repoModule) Validate() error { return m.validateErr }

// bareModule has no lifecycle hooks at all.
type bareModule struct{}

func (bareModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: "embedder.bare", New: func() Module { return bareModule{} }}
}

func yamlSection(t *testing.T, src string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	return *doc.Content[0]
}

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewAppContext(slog.New(slog.NewTextHandler(&buf, nil)), "/data")
	child := ctx.ForModule("memory.sqlite")
	child.RegisterService("ltm.repository", "repo")

	child.Logger.Info("opened")
	if !strings.Contains(buf.String(), "module=memory.sqlite") {
		t.Errorf("child logger lacks module attribute: %s", buf.String())
	}
	if _, ok := ctx.GetService("ltm.repository"); !ok {
		t.Error("service registered on the child is not visible from the root")
	}
	if child.DataDir != "/data" {
		t.Errorf("DataDir = %q", child.DataDir)
	}

	// Scoping twice must not stack module attributes.
	buf.Reset()
	child.ForModule("gateway.http").Logger.Info("listening")
	if strings.Contains(buf.String(), "memory.sqlite") {
		t.Errorf("nested scope kept the previous module: %s", buf.String())
	}
}

func TestAppContext_LoadModule(t *testing.T) {
	resetRegistry(t)
	RegisterModule(&repoModule{})

	ctx := NewAppContext(nil, "/var/lib/memoryd").WithModuleConfigs(map[string]yaml.Node{
		"memory.fake": yamlSection(t, "path: /tmp/ltm.db"),
	})
	mod, err := ctx.LoadModule("memory.fake")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	repo := mod.(*repoModule)
	if !repo.configured || repo.Path != "/tmp/ltm.db" {
		t.Errorf("config not applied: %+v", repo)
	}
	if repo.provisioned == nil || repo.provisioned.Logger == ctx.Logger {
		t.Error("Provision should receive a module-scoped context")
	}
	if svc, err := Lookup[*repoModule](ctx, "ltm.repository"); err != nil || svc != repo {
		t.Errorf("service = %v, %v", svc, err)
	}
}

func TestAppContext_LoadModule_WithoutConfigSection(t *testing.T) {
	resetRegistry(t)
	RegisterModule(&repoModule{})

	mod, err := NewAppContext(nil, "/data").LoadModule("memory.fake")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	repo := mod.(*repoModule)
	if repo.configured {
		t.Error("Configure called without a config section")
	}
	if repo.Path != "/data/fake.db" {
		t.Errorf("Path = %q, want the data dir default", repo.Path)
	}
}

func TestAppContext_LoadModule_Errors(t *testing.T) {
	tests := []struct {
		name    string
		module  Module
		id      string
		section string
		want    string
	}{
		{"unknown", &repoModule{}, "memory.redis", "", "unknown module"},
		{"bad config", &repoModule{}, "memory.fake", "path: [a, b]", "configuring module memory.fake"},
		{"provision", &repoModule{provisionErr: errors.New("disk full")}, "memory.fake", "", "disk full"},
		{"validate", &repoModule{validateErr: errors.New("dims mismatch")}, "memory.fake", "", "validating module memory.fake"},
		{"config for bare module", bareModule{}, "embedder.bare", "dimensions: 64", "takes no configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRegistry(t)
			RegisterModule(tt.module)

			ctx := NewAppContext(nil, "/data")
			if tt.section != "" {
				ctx = ctx.WithModuleConfigs(map[string]yaml.Node{tt.id: yamlSection(t, tt.section)})
			}
			_, err := ctx.LoadModule(tt.id)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.want)
			}
			if tt.name == "unknown" && !errors.Is(err, ErrUnknownModule) {
				t.Errorf("err = %v, want ErrUnknownModule", err)
			}
		})
	}
}

func TestAppContext_LoadModule_EmptySectionForBareModule(t *testing.T) {
	resetRegistry(t)
	RegisterModule(bareModule{})

	ctx := NewAppContext(nil, "/data").WithModuleConfigs(map[string]yaml.Node{
		"embedder.bare": yamlSection(t, "{}"),
	})
	if _, err := ctx.LoadModule("embedder.bare"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
}

func TestRegisterModule_Rejects(t *testing.T) {
	tests := []struct {
		name string
		info ModuleInfo
	}{
		{"empty id", ModuleInfo{New: func() Module { return bareModule{} }}},
		{"not namespaced", ModuleInfo{ID: "sqlite", New: func() Module { return bareModule{} }}},
		{"nil constructor", ModuleInfo{ID: "memory.nil"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRegistry(t)
			if err := modules.add(tt.info); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("duplicate panics", func(t *testing.T) {
		resetRegistry(t)
		RegisterModule(bareModule{})
		defer func() {
			if recover() == nil {
				t.Error("expected panic on duplicate registration")
			}
		}()
		RegisterModule(bareModule{})
	})
}

func TestGetModules_Sorted(t *testing.T) {
	resetRegistry(t)
	RegisterModule(&repoModule{})
	RegisterModule(bareModule{})

	var ids []ModuleID
	for _, info := range GetModules() {
		ids = append(ids, info.ID)
	}
	if len(ids) != 2 || ids[0] != "embedder.bare" || ids[1] != "memory.fake" {
		t.Errorf("GetModules = %v", ids)
	}
}
