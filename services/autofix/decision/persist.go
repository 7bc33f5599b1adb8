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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// cacheFileVersion is the current on-disk format version.
const cacheFileVersion = "1.0.0"

// Persistence sentinel errors.
var (
	// ErrCacheCorrupt is returned when a cache file fails checksum
	// verification.
	ErrCacheCorrupt = errors.New("decision cache file is corrupt")

	// ErrVersionMismatch is returned when the file format version is
	// not understood.
	ErrVersionMismatch = errors.New("decision cache version mismatch")
)

// cacheFile is the on-disk format: a JSON object wrapping the decision
// array with a version and an integrity checksum over the array bytes.
type cacheFile struct {
	Version   string          `json:"version"`
	Checksum  string          `json:"checksum"`
	Decisions []AgentDecision `json:"decisions"`
}

// checksumDecisions computes a SHA-256 digest over the canonical JSON
// encoding of the decision array.
func checksumDecisions(decisions []AgentDecision) (string, error) {
	data, err := json.Marshal(decisions)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes the cache to path atomically.
//
// Description:
//
//	Serializes the decision array with a version and checksum, writes
//	to a temp file in the same directory, then renames into place so
//	a crash never leaves a half-written cache. The decision array
//	round-trips exactly through Save and Load.
//
// Inputs:
//
//	path - Destination file. Parent directories are created.
//
// Outputs:
//
//	error - Non-nil on any I/O or encoding failure.
func (c *Cache) Save(path string) error {
	decisions := c.Snapshot()

	checksum, err := checksumDecisions(decisions)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cacheFile{
		Version:   cacheFileVersion,
		Checksum:  checksum,
		Decisions: decisions,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".decisions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}

	c.logger.Debug("decision cache saved",
		"path", path,
		"entries", len(decisions),
	)
	return nil
}

// Load replaces the cache contents from a file written by Save.
//
// Description:
//
//	Verifies the format version and the checksum before accepting the
//	data. A missing file is not an error; the cache is simply left
//	empty so first runs need no setup.
//
// Outputs:
//
//	error - ErrVersionMismatch, ErrCacheCorrupt, or an I/O error.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache file: %w", err)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}

	if file.Version != cacheFileVersion {
		return fmt.Errorf("%w: file has %q, want %q", ErrVersionMismatch, file.Version, cacheFileVersion)
	}

	checksum, err := checksumDecisions(file.Decisions)
	if err != nil {
		return err
	}
	if checksum != file.Checksum {
		return ErrCacheCorrupt
	}

	c.Replace(file.Decisions)

	c.logger.Debug("decision cache loaded",
		"path", path,
		"entries", len(file.Decisions),
	)
	return nil
}
