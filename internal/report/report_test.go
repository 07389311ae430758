package report

import (
	"bytes"
	"strings"
	"testing"
)

func TestReporterWritesPlainTextToNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Title("user-uniswap on %s", "rinkeby")
	r.Step(1, 4, "create-user-proxy")
	r.OK("proxy deployed at %s", "0x01")
	r.Skip("executor already assigned")
	r.Fail("submission rejected")
	r.KV("tx", "0xabc")

	out := buf.String()
	for _, want := range []string{"=== user-uniswap on rinkeby", "[1/4] create-user-proxy", "✓ proxy deployed at 0x01",
		"· executor already assigned", "✗ submission rejected", "tx:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("non-terminal output must not contain escape codes")
	}
}

func TestReporterTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Table([]string{"ID", "STATUS"}, [][]string{{"a", "confirmed"}, {"long-id", "skipped"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	if strings.Index(lines[1], "confirmed") != strings.Index(lines[2], "skipped") {
		t.Fatalf("columns not aligned:\n%s", buf.String())
	}
}

func TestNilReporterIsSilent(t *testing.T) {
	var r *Reporter
	r.OK("nothing")
	r.KV("k", "v")
	r.Table([]string{"a"}, nil)
}
