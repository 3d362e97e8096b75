// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gputest provides headless HAL devices for gpumem tests.
//
// Devices come from the wgpu noop backend, which keeps buffer contents in Go
// memory, so tests can read back what was uploaded. Queue and
// RecordingDevice wrap the noop objects to control fence completion and to
// count the commands that reach the GPU.
package gputest

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// NoopDevice creates a noop device and queue. Both are destroyed when the
// test ends.
func NoopDevice(tb testing.TB) (hal.Device, hal.Queue) {
	tb.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		tb.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		tb.Fatal("noop backend exposed no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		tb.Fatalf("Open failed: %v", err)
	}
	tb.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// Queue wraps a hal.Queue and lets a test decide when submissions complete.
//
// With AutoComplete set every submission completes immediately, matching
// the noop backend. Otherwise completion only advances through Complete,
// CompleteAll, or the OnPoll hook.
type Queue struct {
	hal.Queue

	// AutoComplete marks each submission complete as soon as it is made.
	AutoComplete bool

	// OnPoll, when set, runs at the start of every PollCompleted call.
	OnPoll func(q *Queue)

	submitted uint64
	completed uint64

	// Polls counts PollCompleted calls.
	Polls int

	// Writes counts WriteBuffer calls.
	Writes int
}

// NewQueue wraps inner. Completion is manual.
func NewQueue(inner hal.Queue) *Queue {
	return &Queue{Queue: inner}
}

// Submit forwards to the wrapped queue and records the submission index.
func (q *Queue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	idx, err := q.Queue.Submit(cbs)
	if err != nil {
		return 0, err
	}
	q.submitted = idx
	if q.AutoComplete {
		q.completed = idx
	}
	return idx, nil
}

// PollCompleted returns the highest submission index marked complete.
func (q *Queue) PollCompleted() uint64 {
	q.Polls++
	if q.OnPoll != nil {
		q.OnPoll(q)
	}
	return q.completed
}

// WriteBuffer forwards to the wrapped queue and counts the call.
func (q *Queue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	q.Writes++
	return q.Queue.WriteBuffer(buffer, offset, data)
}

// Complete marks every submission up to idx complete.
func (q *Queue) Complete(idx uint64) {
	if idx > q.completed {
		q.completed = idx
	}
}

// CompleteAll marks every submission made so far complete.
func (q *Queue) CompleteAll() { q.completed = q.submitted }

// Submitted returns the last submission index.
func (q *Queue) Submitted() uint64 { return q.submitted }

// Completed returns the highest completed submission index.
func (q *Queue) Completed() uint64 { return q.completed }
