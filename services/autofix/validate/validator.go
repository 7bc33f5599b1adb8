// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// DefaultMaxBytes bounds the content size a single check will parse.
const DefaultMaxBytes = 4 << 20

// ContentValidator checks proposed file content for parseability and
// structural corruption.
//
// Thread Safety: safe for concurrent use. Tree-sitter parsers are
// created per-call to avoid sharing issues.
type ContentValidator struct {
	maxBytes int
}

// NewContentValidator creates a validator.
//
// Inputs:
//
//	maxBytes - Largest content the validator will parse. Zero or
//	negative means DefaultMaxBytes.
func NewContentValidator(maxBytes int) *ContentValidator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &ContentValidator{maxBytes: maxBytes}
}

// Check validates proposed content for one file.
//
// Description:
//
//	Parses the content with the grammar matching the file's extension
//	and reports syntax errors and duplicated top-level definitions.
//	Files in languages without a grammar pass trivially: an unknown
//	extension is not evidence of corruption.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	path - File path, used only for language detection and findings.
//	content - The proposed file content.
//
// Outputs:
//
//	*Report - Findings; Valid is true when none were recorded.
//	error - Non-nil for a nil context or an internal parser failure.
func (v *ContentValidator) Check(ctx context.Context, path string, content []byte) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	report := &Report{Valid: true, Findings: make([]Finding, 0)}

	if len(content) > v.maxBytes {
		report.add(Finding{
			Kind:    FindingTooLarge,
			File:    path,
			Message: fmt.Sprintf("content is %d bytes (max %d)", len(content), v.maxBytes),
		})
		return report, nil
	}

	lang := grammarFor(path)
	if lang == nil {
		return report, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()

	if errNode := firstErrorNode(root); errNode != nil {
		report.add(Finding{
			Kind:    FindingSyntax,
			File:    path,
			Line:    int(errNode.StartPoint().Row) + 1,
			Message: "syntax error in proposed content",
		})
		return report, nil
	}

	v.checkDuplicateDefinitions(root, content, path, report)
	return report, nil
}

// checkDuplicateDefinitions flags a top-level name defined more than
// once. Duplicates at file scope are how a fix applied twice, or two
// fixes applied to overlapping regions, usually manifest.
func (v *ContentValidator) checkDuplicateDefinitions(root *sitter.Node, content []byte, path string, report *Report) {
	seen := make(map[string]int)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		name := definitionName(child, content)
		if name == "" {
			continue
		}

		line := int(child.StartPoint().Row) + 1
		if firstLine, dup := seen[name]; dup {
			report.add(Finding{
				Kind:    FindingDuplicateDefinition,
				File:    path,
				Line:    line,
				Message: fmt.Sprintf("%q is already defined at line %d", name, firstLine),
			})
			continue
		}
		seen[name] = line
	}
}

// definitionName extracts the declared name from a top-level node, or
// "" when the node does not introduce a named definition.
func definitionName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "function_declaration", "function_definition",
		"class_declaration", "class_definition",
		"decorated_definition":
		if node.Type() == "decorated_definition" {
			if inner := node.ChildByFieldName("definition"); inner != nil {
				node = inner
			}
		}
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			return nameNode.Content(content)
		}
	case "method_declaration":
		// Methods are namespaced by receiver; same name on different
		// receivers is legal, so key on both.
		nameNode := node.ChildByFieldName("name")
		recvNode := node.ChildByFieldName("receiver")
		if nameNode != nil && recvNode != nil {
			return recvNode.Content(content) + "." + nameNode.Content(content)
		}
	}
	return ""
}

// firstErrorNode finds the first error or missing node in the AST.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if errNode := firstErrorNode(node.Child(i)); errNode != nil {
			return errNode
		}
	}
	return nil
}

// grammarFor maps a file extension to its tree-sitter grammar, or nil
// for languages without one.
func grammarFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage()
	case ".py", ".pyi":
		return python.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	case ".ts", ".tsx", ".mts", ".cts":
		return typescript.GetLanguage()
	default:
		return nil
	}
}
