// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(nil)

	if _, ok := c.Get("fmt-agent", "abc"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(AgentDecision{
		AgentName:   "fmt-agent",
		Fingerprint: "abc",
		Confidence:  0.9,
		Outcome:     OutcomeFixed,
		FilePath:    "a.go",
	})

	d, ok := c.Get("fmt-agent", "abc")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if d.Confidence != 0.9 || d.Outcome != OutcomeFixed {
		t.Errorf("got %+v", d)
	}
	if d.Timestamp.IsZero() {
		t.Error("Put should stamp a timestamp")
	}

	// Same agent, different fingerprint stays a miss.
	if _, ok := c.Get("fmt-agent", "def"); ok {
		t.Error("different fingerprint should miss")
	}
	// Different agent, same fingerprint stays a miss.
	if _, ok := c.Get("lint-agent", "abc"); ok {
		t.Error("different agent should miss")
	}
}

func TestCacheInvalidateByFile(t *testing.T) {
	c := NewCache(nil)
	c.Put(AgentDecision{AgentName: "a", Fingerprint: "f1", FilePath: "x.go"})
	c.Put(AgentDecision{AgentName: "b", Fingerprint: "f2", FilePath: "x.go"})
	c.Put(AgentDecision{AgentName: "a", Fingerprint: "f3", FilePath: "y.go"})

	if dropped := c.Invalidate("x.go"); dropped != 2 {
		t.Errorf("dropped %d, want 2", dropped)
	}
	if _, ok := c.Get("a", "f1"); ok {
		t.Error("f1 should be gone")
	}
	if _, ok := c.Get("b", "f2"); ok {
		t.Error("f2 should be gone")
	}
	if _, ok := c.Get("a", "f3"); !ok {
		t.Error("y.go entry should survive")
	}

	if dropped := c.Invalidate("x.go"); dropped != 0 {
		t.Errorf("second invalidate dropped %d, want 0", dropped)
	}
}

func TestCacheInvalidateFingerprintAcrossAgents(t *testing.T) {
	c := NewCache(nil)
	c.Put(AgentDecision{AgentName: "a", Fingerprint: "shared", FilePath: "x.go"})
	c.Put(AgentDecision{AgentName: "b", Fingerprint: "shared", FilePath: "x.go"})
	c.Put(AgentDecision{AgentName: "a", Fingerprint: "other", FilePath: "x.go"})

	if dropped := c.InvalidateFingerprint("shared"); dropped != 2 {
		t.Errorf("dropped %d, want 2", dropped)
	}
	if _, ok := c.Get("a", "other"); !ok {
		t.Error("unrelated fingerprint should survive")
	}

	// The file index must not retain the dropped keys.
	if dropped := c.Invalidate("x.go"); dropped != 1 {
		t.Errorf("file invalidate dropped %d, want 1", dropped)
	}
}

func TestCacheEvaluateUsesCachedConfidence(t *testing.T) {
	c := NewCache(nil)
	c.Put(AgentDecision{AgentName: "a", Fingerprint: "f", Confidence: 0.42})

	got := c.Evaluate("a", "f", func() float64 {
		t.Fatal("compute must not run on a cache hit")
		return 0
	})
	if got != 0.42 {
		t.Errorf("got %v, want 0.42", got)
	}
}

func TestCacheEvaluateCollapsesConcurrentComputes(t *testing.T) {
	c := NewCache(nil)

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	firstDone := make(chan float64, 1)
	go func() {
		firstDone <- c.Evaluate("a", "f", func() float64 {
			close(entered)
			<-release
			calls.Add(1)
			return 0.7
		})
	}()

	<-entered

	// The second caller arrives while the first compute is in flight
	// and must join it rather than computing again.
	secondDone := make(chan float64, 1)
	go func() {
		secondDone <- c.Evaluate("a", "f", func() float64 {
			calls.Add(1)
			return 0.1
		})
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	if v := <-firstDone; v != 0.7 {
		t.Errorf("first caller got %v, want 0.7", v)
	}
	if v := <-secondDone; v != 0.7 {
		t.Errorf("second caller got %v, want 0.7 from shared flight", v)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
}

func TestCacheReplaceRebuildsFileIndex(t *testing.T) {
	c := NewCache(nil)
	c.Put(AgentDecision{AgentName: "old", Fingerprint: "f", FilePath: "gone.go"})

	c.Replace([]AgentDecision{
		{AgentName: "new", Fingerprint: "f", FilePath: "here.go"},
	})

	if c.Len() != 1 {
		t.Fatalf("len %d, want 1", c.Len())
	}
	if _, ok := c.Get("old", "f"); ok {
		t.Error("old entry should be gone after Replace")
	}
	if dropped := c.Invalidate("gone.go"); dropped != 0 {
		t.Errorf("stale file index dropped %d, want 0", dropped)
	}
	if dropped := c.Invalidate("here.go"); dropped != 1 {
		t.Errorf("new file index dropped %d, want 1", dropped)
	}
}
