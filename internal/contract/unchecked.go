// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !gpumemcheck

package contract

// Checked is true in builds tagged gpumemcheck.
const Checked = false
