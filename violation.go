// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpumem

import "github.com/gogpu/gpumem/internal/contract"

// Violation describes misuse of a gpumem API detected at run time.
type Violation = contract.Violation

// Checked reports whether this build logs every violation at Error level
// (built with -tags gpumemcheck).
const Checked = contract.Checked

// SetViolationHandler installs h to receive every contract violation and
// returns a function restoring the previous handler. A nil h removes it.
//
// h is called synchronously on the goroutine that misused the API.
func SetViolationHandler(h func(Violation)) (restore func()) {
	if h == nil {
		return contract.SetHandler(nil)
	}
	return contract.SetHandler(contract.Handler(h))
}

// Violations returns the number of contract violations reported since
// process start.
func Violations() uint64 {
	return contract.Count()
}
