package parser

import (
	"crypto/sha256"
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyscope/internal/core/vfs"
)

// Text is the immutable content of one file at one revision, carrying a
// content hash so downstream queries can compare versions without comparing
// bytes. A fresh Text is installed whenever the file's revision changes;
// existing holders keep reading the version they loaded.
type Text struct {
	Content string
	Hash    [32]byte
}

func NewText(content string) Text {
	return Text{Content: content, Hash: sha256.Sum256([]byte(content))}
}

func (t Text) Equal(o Text) bool { return t.Hash == o.Hash }

// Slice returns the source text covered by node.
func (t Text) Slice(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint(len(t.Content)) {
		return ""
	}
	return t.Content[start:end]
}

// Location is a 1-based source position.
type Location struct {
	Line   int
	Column int
}

// Span is the byte and line/column extent of one syntax node, kept in
// diagnostics and indices so they stay meaningful after the tree is gone.
type Span struct {
	StartByte uint
	EndByte   uint
	Start     Location
	End       Location
}

func NodeSpan(node *sitter.Node) Span {
	return Span{
		StartByte: node.StartByte(),
		EndByte:   node.EndByte(),
		Start: Location{
			Line:   int(node.StartPosition().Row) + 1,
			Column: int(node.StartPosition().Column) + 1,
		},
		End: Location{
			Line:   int(node.EndPosition().Row) + 1,
			Column: int(node.EndPosition().Column) + 1,
		},
	}
}

// ParseError is one recoverable syntax problem embedded in a parse tree.
type ParseError struct {
	Span    Span
	Message string
}

// ParsedModule is the immutable parse result for one file at one revision.
// Its declared equality is source-hash equality: the parser is a pure
// function of the text, so comparing hashes is exact and avoids touching
// two whole trees.
type ParsedModule struct {
	File   *vfs.File
	Source Text
	Tree   *sitter.Tree
	Errors []ParseError
}

func (m *ParsedModule) Root() *sitter.Node {
	if m == nil || m.Tree == nil {
		return nil
	}
	return m.Tree.RootNode()
}

func (m *ParsedModule) Equal(o *ParsedModule) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Source.Hash == o.Source.Hash
}

// collectParseErrors gathers ERROR and MISSING nodes. tree-sitter embeds
// them in place of unparsable regions instead of failing the parse.
func collectParseErrors(node *sitter.Node, text Text, out []ParseError) []ParseError {
	if node == nil {
		return out
	}
	if node.IsError() {
		snippet := text.Slice(node)
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		out = append(out, ParseError{
			Span:    NodeSpan(node),
			Message: fmt.Sprintf("syntax error near %q", snippet),
		})
		// An ERROR node's children are the parser's recovery guesses;
		// reporting them too would duplicate the region.
		return out
	}
	if node.IsMissing() {
		out = append(out, ParseError{
			Span:    NodeSpan(node),
			Message: fmt.Sprintf("missing %s", node.Kind()),
		})
		return out
	}
	if !node.HasError() {
		return out
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		out = collectParseErrors(node.Child(i), text, out)
	}
	return out
}
