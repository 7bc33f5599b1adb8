// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import "errors"

// Sentinel errors for the normalize package.
//
// These never escape Parse or Normalize; they classify degradations
// that are logged and absorbed (spec'd skip-and-continue behavior).
var (
	// ErrUnparseable marks output no registered extractor understood.
	ErrUnparseable = errors.New("tool output could not be parsed")

	// ErrCountMismatch marks output whose parsed issue count disagrees
	// with the tool's self-reported count.
	ErrCountMismatch = errors.New("parsed issue count disagrees with self-reported count")
)
