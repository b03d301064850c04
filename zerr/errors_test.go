package zerr

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeNameExists, "structure name already registered")
	target := New(CodeNameExists, "")
	if !errors.Is(err, target) {
		t.Fatal("errors.Is should match errors sharing a Code")
	}

	other := New(CodeTableFull, "")
	if errors.Is(err, other) {
		t.Fatal("errors.Is should not match errors with different Codes")
	}
}

func TestWithContextChaining(t *testing.T) {
	err := New(CodeSizeMismatch, "bad size").WithContext("got", 4).WithContext("want", 8)
	if err.Context["got"] != 4 || err.Context["want"] != 8 {
		t.Fatalf("context not recorded: %+v", err.Context)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("ENOENT")
	err := Wrap(cause, CodeNameNotFound, "segment not found")
	if errors.Unwrap(err) == nil {
		t.Fatal("Wrap should preserve an unwrappable cause")
	}
	if err.Code != CodeNameNotFound {
		t.Fatalf("Code = %v, want CodeNameNotFound", err.Code)
	}
}

func TestCodeStringNamesAllCodes(t *testing.T) {
	codes := []Code{
		CodeUnknown, CodeNameTooLong, CodeNameExists, CodeNameNotFound,
		CodeBadMagic, CodeBadVersion, CodeTableFull, CodeTooLarge,
		CodeCapacityRequired, CodeDtypeRequired, CodeSizeMismatch,
		CodeOverflow, CodeComputationFailed,
	}
	seen := make(map[string]bool)
	for _, c := range codes {
		s := c.String()
		if s == "" {
			t.Fatalf("Code %d has empty String()", c)
		}
		if seen[s] && c != CodeUnknown {
			t.Fatalf("duplicate Code.String() value %q", s)
		}
		seen[s] = true
	}
}
