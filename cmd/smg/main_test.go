package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lightseekorg/smg/internal/config"
)

func TestMergeFlagsOverridesFileValues(t *testing.T) {
	cmd := newServeCmd()
	if err := cmd.Flags().Parse([]string{"--backend", "vllm", "--dp-size", "4"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	file := config.Config{Backend: "sglang", Model: "m", DPSize: 2, Policy: "cache_aware"}
	flags := config.Config{Backend: "vllm", DPSize: 4}

	got := mergeFlags(cmd, file, flags)
	if got.Backend != "vllm" {
		t.Errorf("backend = %q, want flag override", got.Backend)
	}
	if got.DPSize != 4 {
		t.Errorf("dp size = %d, want 4", got.DPSize)
	}
	// Fields without explicit flags keep file values.
	if got.Model != "m" || got.Policy != "cache_aware" {
		t.Errorf("file values clobbered: %+v", got)
	}
}

func TestConfigCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.yaml")
	if err := os.WriteFile(path, []byte("model: llama-8b\nbackend: sglang\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "check", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out.String(), "ok") {
		t.Fatalf("output = %q, want ok", out.String())
	}
}

func TestConfigCheckRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.yaml")
	if err := os.WriteFile(path, []byte("backend: triton\nmodel: m\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"config", "check", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected validation error")
	}
}
