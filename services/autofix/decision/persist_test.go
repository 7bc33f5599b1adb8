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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func seededCache() *Cache {
	c := NewCache(nil)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.Put(AgentDecision{
		AgentName: "fmt-agent", Fingerprint: "f1", Confidence: 0.95,
		Outcome: OutcomeFixed, FilePath: "a.go", Timestamp: ts,
	})
	c.Put(AgentDecision{
		AgentName: "lint-agent", Fingerprint: "f2", Confidence: 0.4,
		Outcome: OutcomeDeclined, FilePath: "b.py", Timestamp: ts,
	})
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "decisions.json")

	src := seededCache()
	if err := src.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := NewCache(nil)
	if err := dst.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !reflect.DeepEqual(src.Snapshot(), dst.Snapshot()) {
		t.Errorf("round trip changed contents:\nsaved  %+v\nloaded %+v",
			src.Snapshot(), dst.Snapshot())
	}
}

func TestLoadMissingFileLeavesCacheEmpty(t *testing.T) {
	c := NewCache(nil)
	if err := c.Load(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("len %d, want 0", c.Len())
	}
}

func TestLoadRejectsTamperedDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	if err := seededCache().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var file map[string]json.RawMessage
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatal(err)
	}
	file["decisions"] = json.RawMessage(`[]`)
	tampered, err := json.Marshal(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, tampered, 0644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(nil)
	if err := c.Load(path); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("got %v, want ErrCacheCorrupt", err)
	}
	if c.Len() != 0 {
		t.Error("corrupt load must not populate the cache")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	if err := os.WriteFile(path, []byte("{{{{"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(nil)
	if err := c.Load(path); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("got %v, want ErrCacheCorrupt", err)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	payload := `{"version": "99.0.0", "checksum": "", "decisions": []}`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(nil)
	if err := c.Load(path); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("got %v, want ErrVersionMismatch", err)
	}
}

func TestSaveCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "decisions.json")
	if err := NewCache(nil).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("cache file not written: %v", err)
	}
}

func TestWatcherInvalidatesOnExternalWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "watched.go")
	if err := os.WriteFile(target, []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(nil)
	c.Put(AgentDecision{AgentName: "a", Fingerprint: "f", FilePath: target})

	w, err := NewWatcher(c, []string{dir}, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(target, []byte("package main // edited\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := c.Get("a", "f"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("external write did not invalidate the cached decision")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
