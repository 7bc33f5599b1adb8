// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filelock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireReleaseRemovesSidecar(t *testing.T) {
	m := NewManager(nil)
	target := filepath.Join(t.TempDir(), "a.go")

	lease, err := m.Acquire(context.Background(), target)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	sidecar := target + sidecarSuffix
	if _, err := os.Stat(sidecar); err != nil {
		t.Errorf("sidecar missing while held: %v", err)
	}

	lease.Release()
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Errorf("sidecar should be removed on release, stat err %v", err)
	}
}

func TestAcquireSerializesSamePath(t *testing.T) {
	m := NewManager(nil)
	target := filepath.Join(t.TempDir(), "shared.go")

	var inCritical atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(context.Background(), target)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if inCritical.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(10 * time.Millisecond)
			inCritical.Add(-1)
			lease.Release()
		}()
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Errorf("%d holders overlapped on one path", overlaps.Load())
	}
}

func TestAcquireDistinctPathsDoNotContend(t *testing.T) {
	m := NewManager(nil)
	dir := t.TempDir()

	a, err := m.Acquire(context.Background(), filepath.Join(dir, "a.go"))
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := m.Acquire(ctx, filepath.Join(dir, "b.go"))
	if err != nil {
		t.Fatalf("distinct path blocked: %v", err)
	}
	b.Release()
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	m := NewManager(nil)
	target := filepath.Join(t.TempDir(), "held.go")

	lease, err := m.Acquire(context.Background(), target)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, target); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("got %v, want ErrAcquireTimeout", err)
	}
}

func TestAcquireReapsStaleSidecar(t *testing.T) {
	m := NewManager(nil)
	target := filepath.Join(t.TempDir(), "orphaned.go")

	// A sidecar left behind by a process that no longer exists.
	sidecar := target + sidecarSuffix
	if err := os.WriteFile(sidecar, []byte("999999999"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lease, err := m.Acquire(ctx, target)
	if err != nil {
		t.Fatalf("stale sidecar not reaped: %v", err)
	}
	lease.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	m := NewManager(nil)
	target := filepath.Join(t.TempDir(), "a.go")

	lease, err := m.Acquire(context.Background(), target)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lease.Release()
	lease.Release()

	// A second holder must still work after the double release.
	next, err := m.Acquire(context.Background(), target)
	if err != nil {
		t.Fatalf("reacquire after double release: %v", err)
	}
	next.Release()
}

func TestAcquireInputValidation(t *testing.T) {
	m := NewManager(nil)

	//lint:ignore SA1012 the nil guard is the behavior under test
	if _, err := m.Acquire(nil, "a.go"); !errors.Is(err, ErrNilContext) {
		t.Errorf("nil ctx: got %v, want ErrNilContext", err)
	}
	if _, err := m.Acquire(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank path: got %v, want ErrInvalidInput", err)
	}
}

func TestEquivalentPathSpellingsContend(t *testing.T) {
	m := NewManager(nil)
	dir := t.TempDir()
	target := filepath.Join(dir, "x.go")
	spelled := dir + "/./x.go"

	lease, err := m.Acquire(context.Background(), target)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, spelled); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("equivalent spelling did not contend: %v", err)
	}
}
