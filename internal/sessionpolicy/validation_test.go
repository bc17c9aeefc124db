package sessionpolicy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	if _, err := ValidateSessionID(""); err == nil {
		t.Fatal("empty id should be rejected")
	}
	if _, err := ValidateSessionID("pane\x00one"); err == nil {
		t.Fatal("NUL byte should be rejected")
	}
	if _, err := ValidateSessionID("pane\tone"); err == nil {
		t.Fatal("control character should be rejected")
	}
	if _, err := ValidateSessionID(strings.Repeat("a", MaxIDLength+1)); err == nil {
		t.Fatal("overlong id should be rejected")
	}
	got, err := ValidateSessionID("  ws-1:pane-2  ")
	if err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	if got != "ws-1:pane-2" {
		t.Fatalf("id = %q, want trimmed", got)
	}
}

func TestNormalizeCwd(t *testing.T) {
	if got, err := NormalizeCwd(""); err != nil || got != "" {
		t.Fatalf("empty cwd = %q, %v", got, err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}
	got, err := NormalizeCwd("~/projects")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != filepath.Join(home, "projects") {
		t.Fatalf("cwd = %q", got)
	}
	abs, err := NormalizeCwd("/tmp")
	if err != nil || abs != "/tmp" {
		t.Fatalf("absolute cwd = %q, %v", abs, err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}
	if got := expandHome("~"); got != home {
		t.Fatalf("bare tilde = %q, want %q", got, home)
	}
	if got := expandHome("~/work"); got != filepath.Join(home, "work") {
		t.Fatalf("tilde slash = %q", got)
	}
	// ~user expansion is shell business; the daemon leaves it alone.
	if got := expandHome("~alice/work"); got != "~alice/work" {
		t.Fatalf("named user = %q, want untouched", got)
	}
	if got := expandHome("/var/tmp"); got != "/var/tmp" {
		t.Fatalf("absolute = %q, want untouched", got)
	}
}
