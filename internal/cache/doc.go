// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a generic LRU memo cache.
//
// The renderer uses it to memoize GPU pipelines by state key: creating a
// pipeline is expensive, and the number of distinct keys a frame touches is
// small and stable.
//
//	pipelines := cache.New[statecache.PipelineKey, hal.RenderPipeline](64, retire)
//	p, err := pipelines.GetOrCreate(key, func() (hal.RenderPipeline, error) {
//		return source.Pipeline(key)
//	})
//
// # Eviction
//
// When the cache holds more than its limit, the least recently used entries
// are removed and passed to the eviction callback, which takes ownership of
// whatever GPU object the value holds. Clear evicts everything the same way.
//
// # Thread Safety
//
// Cache is safe for concurrent use. It must not be copied after creation.
// The create and eviction callbacks run with the cache lock held and must
// not call back into the cache.
package cache
