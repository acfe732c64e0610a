package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/tmp", "/tmp"},
		{"relative/path", "relative/path"},
		{"~", home},
		{"~/models", filepath.Join(home, "models")},
		{"~/models/llama-8b", filepath.Join(home, "models", "llama-8b")},
	}
	for _, tc := range cases {
		got, err := ExpandHome(tc.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPathExists(t *testing.T) {
	f := filepath.Join(t.TempDir(), "cfg.yaml")
	if PathExists(f) {
		t.Fatalf("PathExists(%q) = true before create", f)
	}
	if err := os.WriteFile(f, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !PathExists(f) {
		t.Fatalf("PathExists(%q) = false after create", f)
	}
}
