// Copyright 2025 The locksmith Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Goroutine ID extraction.
//
// The verifier keys hold-contexts by goroutine ID. IDs are extracted by
// parsing runtime.Stack output, which works on every architecture and Go
// version. Lock operations are rare next to memory accesses, so the
// ~microsecond parse cost is acceptable here.

package api

import "runtime"

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() int64 {
	// Only the first line is needed: "goroutine 123 [running]:".
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:...". Returns the numeric ID
// or 0 if the format is invalid. Direct byte parsing, no allocations.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}

// getLiveGoroutineIDs returns the IDs of all live goroutines by parsing a
// full runtime.Stack dump. This is the expensive part of the
// dead-goroutine sweep (~1ms per thousand goroutines), which is why the
// sweep is amortized over many context allocations.
func getLiveGoroutineIDs() []int64 {
	// 1MB holds roughly a thousand goroutines' headers; a truncated dump
	// still yields the IDs of every goroutine that fit.
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	return parseAllGIDs(buf[:n])
}

// parseAllGIDs extracts every goroutine ID from a runtime.Stack(all=true)
// dump: one "goroutine N [state]:" header per goroutine.
func parseAllGIDs(buf []byte) []int64 {
	var gids []int64
	for i := 0; i < len(buf); {
		end := i
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		if gid := parseGID(buf[i:end]); gid != 0 {
			gids = append(gids, gid)
		}
		i = end + 1
	}
	return gids
}
