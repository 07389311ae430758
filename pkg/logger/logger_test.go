package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	w, err := newRotatingWriter(path, rotateOptions{MaxBytes: 16, MaxBackups: 2})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	for _, line := range []string{"first-line-xx\n", "second-line-x\n", "third-line-xx\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(current) != "third-line-xx\n" {
		t.Fatalf("unexpected current content %q", current)
	}
	older, err := os.ReadFile(path + ".2")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !strings.HasPrefix(string(older), "first") {
		t.Fatalf("expected oldest backup to hold first line, got %q", older)
	}
}

func TestInitWritesAuditRecords(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "tx-audit.log")

	err := Init(Config{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{"discard"},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = Sync() })

	Audit().Info("tx submitted", "command", "provide-funds", "tx_hash", "0xabc")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	content, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if !strings.Contains(string(content), `"command":"provide-funds"`) {
		t.Fatalf("audit record missing command: %s", content)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARNING": "WARN", "error": "ERROR", "": "INFO"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
