// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package contract reports misuse of the gpumem APIs.
//
// A contract violation is a caller bug (double free, lock while locked,
// unlock without lock, stale handle). It is never a recoverable runtime
// condition and never a panic: the offending call becomes a no-op and the
// violation is reported here.
//
// Builds tagged gpumemcheck log every violation at Error level. Untagged
// builds only count them and log at Debug level. A handler installed with
// SetHandler receives every violation regardless of build mode; tests use
// it to assert that misuse was detected.
package contract

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gogpu/gpumem/internal/logx"
)

// Violation describes one detected contract violation.
type Violation struct {
	// Op is the operation that was misused, e.g. "arena.Free".
	Op string

	// Message says what was wrong.
	Message string

	// Attrs are slog-style key/value pairs with extra context.
	Attrs []any
}

// Error implements error so a Violation can be wrapped or logged as one.
func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Op, v.Message)
}

// Handler receives reported violations.
type Handler func(Violation)

var (
	handler atomic.Pointer[Handler]
	count   atomic.Uint64

	// errorLogs throttles Error-level output in checked builds so a
	// per-frame bug does not flood the log.
	errorLogs = rate.Sometimes{First: 16, Interval: time.Second}
)

// SetHandler installs h and returns a function restoring the previous one.
// A nil h removes the handler.
func SetHandler(h Handler) (restore func()) {
	var next *Handler
	if h != nil {
		next = &h
	}
	prev := handler.Swap(next)
	return func() { handler.Store(prev) }
}

// Report records a violation of op's contract.
func Report(op, msg string, attrs ...any) {
	count.Add(1)
	v := Violation{Op: op, Message: msg, Attrs: attrs}

	if h := handler.Load(); h != nil {
		(*h)(v)
	}

	if Checked {
		errorLogs.Do(func() {
			logx.L().Error("gpumem: contract violation",
				append([]any{slog.String("op", op), slog.String("msg", msg)}, attrs...)...)
		})
		return
	}
	logx.L().Debug("gpumem: contract violation",
		append([]any{slog.String("op", op), slog.String("msg", msg)}, attrs...)...)
}

// Count returns the number of violations reported since process start.
func Count() uint64 {
	return count.Load()
}

// Scope reports the violations of one object. Its handler, when set,
// receives only that object's violations; every violation also goes
// through Report. The zero Scope reports through Report alone.
type Scope struct {
	handler Handler
}

// NewScope returns a Scope delivering to h.
func NewScope(h Handler) Scope {
	return Scope{handler: h}
}

// Report records a violation of op's contract.
func (s Scope) Report(op, msg string, attrs ...any) {
	if s.handler != nil {
		s.handler(Violation{Op: op, Message: msg, Attrs: attrs})
	}
	Report(op, msg, attrs...)
}
