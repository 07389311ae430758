package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeThroughFmt(t *testing.T) {
	cause := stdErrors.New("nonce too low")
	err := fmt.Errorf("provide-funds: %w", Wrap(CodeStorageFailure, cause, "写入失败", WithMetadata("tx", "0x1")))

	if got := CodeOf(err); got != CodeStorageFailure {
		t.Fatalf("expected %s, got %s", CodeStorageFailure, got)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}
	if !stdErrors.Is(err, New(CodeStorageFailure, "")) {
		t.Fatal("expected code comparison via errors.Is")
	}
	e, ok := From(err)
	if !ok || e.Metadata()["tx"] != "0x1" {
		t.Fatalf("metadata lost: %+v", e)
	}
}

func TestRegisterAndHint(t *testing.T) {
	const code Code = "TEST_ONLY"
	Register(code, Attributes{Message: "test", Severity: SeverityWarning, Hint: "run the setup first"})

	err := New(code, "")
	if err.Message() != "test" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if HintOf(err) != "run the setup first" {
		t.Fatalf("unexpected hint %q", HintOf(err))
	}
	if HintOf(New(code, "x", WithHint("override"))) != "override" {
		t.Fatal("expected hint override")
	}
	if SeverityOf(err) != SeverityWarning {
		t.Fatalf("unexpected severity %s", SeverityOf(err))
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatal("plain errors must map to UNKNOWN")
	}
	if AttributesOf("NEVER_REGISTERED").Severity != SeverityCritical {
		t.Fatal("unregistered codes use UNKNOWN attributes")
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil error must exit 0")
	}
	if ExitCode(New(CodeInvalidArgument, "bad")) != 1 {
		t.Fatal("coded errors must exit 1")
	}
	if ExitCode(stdErrors.New("plain")) != 1 {
		t.Fatal("plain errors must exit 1")
	}
}
