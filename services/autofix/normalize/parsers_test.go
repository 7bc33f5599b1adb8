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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mend/services/autofix/issue"
)

func TestCountMypy(t *testing.T) {
	count, ok := countMypy("Found 3 errors in 2 files (checked 10 source files)")
	require.True(t, ok)
	assert.Equal(t, 3, count)

	count, ok = countMypy("Found 1 error in 1 file (checked 4 source files)")
	require.True(t, ok)
	assert.Equal(t, 1, count)

	_, ok = countMypy("Success: no issues found in 4 source files")
	assert.False(t, ok)
}

func TestCountPytest(t *testing.T) {
	count, ok := countPytest("= 3 failed, 2 passed in 1.2s =")
	require.True(t, ok)
	assert.Equal(t, 3, count)

	_, ok = countPytest("= 5 passed in 0.8s =")
	assert.False(t, ok)
}

func TestCountBandit(t *testing.T) {
	raw := `{
		"results": [],
		"metrics": {
			"_totals": {"SEVERITY.HIGH": 1, "SEVERITY.MEDIUM": 2, "SEVERITY.LOW": 3}
		}
	}`
	count, ok := countBandit(raw)
	require.True(t, ok)
	assert.Equal(t, 6, count)

	_, ok = countBandit(`{"results": [], "metrics": {}}`)
	assert.False(t, ok)
}

func TestParseBandit(t *testing.T) {
	raw := `{
		"results": [
			{
				"filename": "app.py",
				"issue_text": "Use of insecure MD5 hash function.",
				"line_number": 23,
				"issue_severity": "HIGH",
				"issue_confidence": "HIGH",
				"test_id": "B303"
			}
		],
		"metrics": {}
	}`
	issues, err := parseBandit(raw)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, issue.TypeSecurity, issues[0].Type)
	assert.Equal(t, issue.SeverityError, issues[0].Severity)
	assert.Equal(t, "app.py", issues[0].FilePath)
	assert.Equal(t, 23, issues[0].LineNumber)
	assert.Equal(t, "B303", issues[0].Metadata["rule"])
}

func TestRuffSeverityMapping(t *testing.T) {
	cases := map[string]issue.Severity{
		"E501": issue.SeverityError,
		"F401": issue.SeverityError,
		"S101": issue.SeverityError,
		"I001": issue.SeverityInfo,
		"D103": issue.SeverityInfo,
		"W291": issue.SeverityWarning,
		"":     issue.SeverityWarning,
	}
	for code, want := range cases {
		assert.Equal(t, want, ruffSeverity(code), "code %q", code)
	}
}
