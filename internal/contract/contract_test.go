// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package contract

import (
	"strings"
	"testing"
)

func TestReportInvokesHandler(t *testing.T) {
	var got []Violation
	restore := SetHandler(func(v Violation) { got = append(got, v) })
	defer restore()

	before := Count()
	Report("arena.Free", "stale handle", "handle", uint64(7))

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].Op != "arena.Free" || got[0].Message != "stale handle" {
		t.Errorf("violation = %+v", got[0])
	}
	if len(got[0].Attrs) != 2 {
		t.Errorf("attrs = %v, want 2 entries", got[0].Attrs)
	}
	if Count() != before+1 {
		t.Errorf("Count() = %d, want %d", Count(), before+1)
	}
}

func TestSetHandlerRestore(t *testing.T) {
	calls := 0
	restore := SetHandler(func(Violation) { calls++ })
	restore()

	Report("op", "msg")
	if calls != 0 {
		t.Errorf("restored handler still called %d times", calls)
	}
}

func TestNestedHandlers(t *testing.T) {
	var outer, inner int
	restoreOuter := SetHandler(func(Violation) { outer++ })
	defer restoreOuter()

	restoreInner := SetHandler(func(Violation) { inner++ })
	Report("op", "first")
	restoreInner()
	Report("op", "second")

	if inner != 1 || outer != 1 {
		t.Errorf("inner=%d outer=%d, want 1 and 1", inner, outer)
	}
}

func TestViolationError(t *testing.T) {
	v := Violation{Op: "geometry.Lock", Message: "already locked"}
	if !strings.Contains(v.Error(), "geometry.Lock") || !strings.Contains(v.Error(), "already locked") {
		t.Errorf("Error() = %q", v.Error())
	}
}

func TestScopeIsolatesHandlers(t *testing.T) {
	var a, b, global []Violation
	restore := SetHandler(func(v Violation) { global = append(global, v) })
	defer restore()

	sa := NewScope(func(v Violation) { a = append(a, v) })
	sb := NewScope(func(v Violation) { b = append(b, v) })
	var zero Scope

	before := Count()
	sa.Report("geometry.Lock", "already locked", "handle", "h1")
	sb.Report("framering.EndFrame", "no frame in progress")
	zero.Report("arena.Free", "stale handle")

	if len(a) != 1 || a[0].Op != "geometry.Lock" || len(a[0].Attrs) != 2 {
		t.Errorf("scope a got %+v, want its own violation only", a)
	}
	if len(b) != 1 || b[0].Op != "framering.EndFrame" {
		t.Errorf("scope b got %+v, want its own violation only", b)
	}
	if len(global) != 3 || Count()-before != 3 {
		t.Errorf("global handler got %d, count grew by %d; want 3, 3", len(global), Count()-before)
	}
}
