package frontend

import (
	"strings"
	"testing"

	"eta/internal/driver"
)

// TestTranslateFibonacciCompilesToAssembly exercises the whole pipeline
// end to end: source -> front end -> HIR -> driver.Text -> Intel-syntax
// assembly, the way cmd/eta's build command is driven.
func TestTranslateFibonacciCompilesToAssembly(t *testing.T) {
	src := `
	func fib(n int) int {
		if n < 2 {
			return n
		}
		return fib(n-1) + fib(n-2)
	}
	`
	cu, err := Translate("fib_unit", src)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(cu.Exported) != 1 {
		t.Fatalf("expected exactly one exported function, got %v", cu.Exported)
	}
	text, err := driver.Text(cu, driver.Options{})
	if err != nil {
		t.Fatalf("driver.Text: %v", err)
	}
	if !strings.HasPrefix(text, ".intel_syntax noprefix") {
		t.Fatalf("expected the Intel syntax directive, got %q", text[:40])
	}
	if !strings.Contains(text, "call") {
		t.Fatalf("expected the two recursive calls to survive as call instructions, got:\n%s", text)
	}
	if !strings.Contains(text, "ret") {
		t.Fatalf("expected a ret instruction, got:\n%s", text)
	}
}

// TestTranslateArraySumUsesBoundsTrampoline exercises array indexing: the
// lowerer must emit the per-function out-of-bounds trampoline once and
// only once even though the loop indexes the array on every iteration.
func TestTranslateArraySumUsesBoundsTrampoline(t *testing.T) {
	src := `
	func sum(arr []int, n int) int {
		let total = 0
		for i = 0; i < n; i += 1 {
			total = total + arr[i]
		}
		return total
	}
	`
	cu, err := Translate("sum_unit", src)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	text, err := driver.Text(cu, driver.Options{})
	if err != nil {
		t.Fatalf("driver.Text: %v", err)
	}
	if strings.Count(text, "__eta_out_of_bounds_sum:") != 1 {
		t.Fatalf("expected exactly one out-of-bounds trampoline label, got:\n%s", text)
	}
	if !strings.Contains(text, "_eta_out_of_bounds") {
		t.Fatalf("expected a call to the out-of-bounds runtime trampoline, got:\n%s", text)
	}
}

// TestTranslateRejectsConstantFoldOverflow exercises the one recoverable
// core error: an arithmetic overflow discovered during constant folding
// aborts translation of the whole unit.
func TestTranslateRejectsConstantFoldOverflow(t *testing.T) {
	src := `
	func overflow() int {
		return 9223372036854775807 + 1
	}
	`
	if _, err := Translate("overflow_unit", src); err == nil {
		t.Fatal("expected constant-fold overflow to fail translation")
	}
}
