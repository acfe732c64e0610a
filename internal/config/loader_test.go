package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightseekorg/smg/internal/errdefs"
	"github.com/lightseekorg/smg/pkg/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "serve.yaml", `
backend: vllm
model: meta-llama/Llama-3.1-8B
connection_mode: grpc
dp_size: 2
worker_base_port: 32000
policy: cache_aware
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "vllm" || cfg.DPSize != 2 || cfg.WorkerBasePort != 32000 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Policy != "cache_aware" {
		t.Fatalf("policy = %q", cfg.Policy)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "serve.json", `{"backend":"sglang","model":"m","tp_size":4}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "sglang" || cfg.TPSize != 4 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "serve.toml", "backend = \"trtllm\"\nmodel = \"m\"\nbackend_config = \"cfg.yaml\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "trtllm" || cfg.BackendConfig != "cfg.yaml" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "serve.ini", "backend=sglang")
	if _, err := Load(path); !errdefs.IsConfig(err) {
		t.Fatalf("err = %v, want config error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errdefs.IsConfig(err) {
		t.Fatalf("err = %v, want config error", err)
	}
}

func TestDefaultsAndValidate(t *testing.T) {
	cfg := Config{Model: "llama-8b"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Backend != "sglang" || cfg.ConnectionMode != "http" {
		t.Errorf("defaults: backend=%q mode=%q", cfg.Backend, cfg.ConnectionMode)
	}
	if cfg.DPSize != 1 || cfg.WorkerBasePort != 31000 || cfg.WorkerStartupTimeoutS != 300 {
		t.Errorf("defaults: dp=%d base=%d timeout=%d", cfg.DPSize, cfg.WorkerBasePort, cfg.WorkerStartupTimeoutS)
	}
	if cfg.ModelID != "llama-8b" {
		t.Errorf("model id default = %q", cfg.ModelID)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "triton" }},
		{"unknown mode", func(c *Config) { c.ConnectionMode = "ws" }},
		{"missing model", func(c *Config) { c.Model = "" }},
		{"bad dp size", func(c *Config) { c.DPSize = -1 }},
		{"bad port", func(c *Config) { c.WorkerBasePort = 70000 }},
		{"missing backend config", func(c *Config) { c.BackendConfig = "/nonexistent/trtllm.yaml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Model: "m"}
			cfg.ApplyDefaults()
			tc.mut(&cfg)
			if err := cfg.Validate(); !errdefs.IsConfig(err) {
				t.Fatalf("err = %v, want config error", err)
			}
		})
	}
}

func TestWorkerSpecTranslation(t *testing.T) {
	cfg := Config{
		Backend:        "vllm",
		Model:          "meta-llama/Llama-3.1-8B",
		ConnectionMode: "grpc",
		DPSize:         2,
	}
	cfg.ApplyDefaults()
	spec := cfg.WorkerSpec()
	if spec.Backend != types.BackendVllm || spec.Mode != types.ModeGRPC {
		t.Fatalf("spec backend/mode: %+v", spec)
	}
	if spec.ModelID != "meta-llama/Llama-3.1-8B" || spec.DataParallelSize != 2 {
		t.Fatalf("spec identity: %+v", spec)
	}
	if spec.StartupTimeout != 300*time.Second {
		t.Fatalf("startup timeout = %s", spec.StartupTimeout)
	}
}
