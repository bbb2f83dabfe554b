package errors

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestCompileErrorContext(t *testing.T) {
	err := Unsupported(L0101, "bitCount requires %s", "POPCNT").
		WithMethod("bits").WithBlock(2).WithNode(7, "Intrinsic").WithNode(9, "Other")

	want := "L0101: bitCount requires POPCNT (bits, B2, n7 Intrinsic)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrUnsupported) || Is(err, ErrInternal) {
		t.Error("kind sentinel mismatch")
	}
	wrapped := fmt.Errorf("compile: %w", err)
	if ce, ok := As(wrapped); !ok || ce.NodeID != 7 {
		t.Errorf("As through wrapping: %v", ce)
	}
}

func TestFatalClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"unsupported", Unsupported(L0100, "x"), true},
		{"malformed", Malformed(L0201, "x"), true},
		{"exhausted", Exhausted(L0300, "x"), true},
		{"internal", ShouldNotReachHere("x"), true},
		{"unavailable", Unavailable("x"), false},
		{"plain error", fmt.Errorf("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestInternalCodeKeepsKind(t *testing.T) {
	err := InternalCode(L0402, "epilogue not patched")
	if err.Kind != KindInternal || err.Code != L0402 || !Is(err, ErrInternal) {
		t.Errorf("unexpected %+v", err)
	}
}

func TestReporter(t *testing.T) {
	SetColorsEnabled(false)
	r := NewReporter(map[string]string{"arch": "amd64", "features": "bmi1"})

	r.Add(nil)
	r.Add(multierr.Combine(
		Unsupported(L0101, "bitCount requires POPCNT").WithNode(3, "Intrinsic").WithMethod("bits"),
		Malformed(L0201, "dangling end").Note("custom note"),
	))
	r.Add(Unavailable("read outside region"))
	r.Add(fmt.Errorf("plain"))

	if r.ErrorCount() != 3 || r.WarningCount() != 1 {
		t.Fatalf("errors=%d warnings=%d", r.ErrorCount(), r.WarningCount())
	}
	errs := r.Errors()
	if notes := strings.Join(errs[0].Notes, "\n"); !strings.Contains(notes, "enabled features: bmi1") {
		t.Errorf("missing feature hint:\n%s", notes)
	}
	if len(errs[1].Notes) != 1 || errs[1].Notes[0] != "custom note" {
		t.Errorf("existing notes must be kept: %v", errs[1].Notes)
	}
	if errs[2].Code != L0400 || errs[2].Err == nil {
		t.Errorf("plain error should be wrapped as internal: %+v", errs[2])
	}

	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"error[L0101]", "--> bits n3 (Intrinsic)", "note[L0500]", "3 error(s), 1 warning(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "note[L0500]") < strings.Index(out, "error[L0201]") {
		t.Error("warnings must follow errors")
	}

	if n := len(multierr.Errors(r.Err())); n != 3 {
		t.Errorf("Err combines %d errors, want 3", n)
	}
	r.Clear()
	if r.HasErrors() || r.Err() != nil {
		t.Error("Clear should drop everything")
	}
}

func TestColorize(t *testing.T) {
	defer SetColorsEnabled(ColorsEnabled())

	SetColorsEnabled(true)
	s := Colorize("error", ColorBoldRed)
	if s == "error" || Strip(s) != "error" {
		t.Errorf("Colorize/Strip round trip: %q", s)
	}
	SetColorsEnabled(false)
	if Colorize("error", ColorBoldRed) != "error" {
		t.Error("disabled colors must leave text untouched")
	}
}
