// Copyright 2025 The locksmith Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"sync"
	"testing"
)

func TestGetGoroutineID(t *testing.T) {
	gid := getGoroutineID()
	if gid <= 0 {
		t.Fatalf("getGoroutineID() = %d, want > 0", gid)
	}

	// Stable within one goroutine.
	if again := getGoroutineID(); again != gid {
		t.Errorf("getGoroutineID() = %d on second call, want %d", again, gid)
	}
}

func TestGetGoroutineIDUniquePerGoroutine(t *testing.T) {
	const n = 16
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- getGoroutineID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for gid := range ids {
		if gid <= 0 {
			t.Errorf("goroutine id %d, want > 0", gid)
		}
		if seen[gid] {
			t.Errorf("goroutine id %d reported twice", gid)
		}
		seen[gid] = true
	}
}

func TestParseGID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"goroutine 1 [running]:", 1},
		{"goroutine 12345 [chan receive]:", 12345},
		{"goroutine  [running]:", 0},
		{"goroutin", 0},
		{"", 0},
		{"not a stack line", 0},
	}
	for _, tt := range tests {
		if got := parseGID([]byte(tt.in)); got != tt.want {
			t.Errorf("parseGID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseAllGIDs(t *testing.T) {
	dump := "goroutine 1 [running]:\nmain.main()\n\t/x/main.go:10 +0x20\n\n" +
		"goroutine 5 [chan receive]:\nmain.worker()\n\t/x/main.go:20 +0x40\n"

	gids := parseAllGIDs([]byte(dump))
	if len(gids) != 2 || gids[0] != 1 || gids[1] != 5 {
		t.Errorf("parseAllGIDs = %v, want [1 5]", gids)
	}
}

func TestGetLiveGoroutineIDsIncludesSelf(t *testing.T) {
	self := getGoroutineID()
	for _, gid := range getLiveGoroutineIDs() {
		if gid == self {
			return
		}
	}
	t.Errorf("live goroutine list does not include current goroutine %d", self)
}
