// # internal/engine/parser/parser.go
package parser

import (
	"context"
	"time"

	"pyscope/internal/core/errors"
	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/query"
	"pyscope/internal/shared/observability"
)

// parseCacheSize bounds how many syntax trees stay resident. Evicted parses
// keep their memo metadata and rebuild silently on next use.
const parseCacheSize = 512

// Parser owns the memoized text and parse queries for Python files. Text is
// invalidated by the file's revision; parse is invalidated by the text, with
// hash equality cutting off downstream work when content is unchanged.
type Parser struct {
	registry *vfs.Registry
	pool     *ParserPool

	texts  *query.Query[*vfs.File, Text]
	parses *query.Query[*vfs.File, *ParsedModule]
}

func NewParser(e *query.Engine, registry *vfs.Registry, loader *GrammarLoader) *Parser {
	p := &Parser{
		registry: registry,
		pool:     NewParserPool(loader.Python()),
	}

	p.texts = query.NewQuery(e, "source.text",
		func(ctx *query.Ctx, f *vfs.File) (Text, error) {
			md, err := registry.Metadata(ctx, f)
			if err != nil {
				return Text{}, err
			}
			if md.Status == vfs.StatusDeleted {
				return NewText(""), nil
			}
			return NewText(registry.ReadSource(f)), nil
		},
		query.WithEquals(func(a, b Text) bool { return a.Equal(b) }),
	)

	p.parses = query.NewQuery(e, "source.parse",
		func(ctx *query.Ctx, f *vfs.File) (*ParsedModule, error) {
			text, err := p.texts.Get(ctx, f)
			if err != nil {
				return nil, err
			}
			return p.parseText(f, text)
		},
		query.WithEquals(func(a, b *ParsedModule) bool { return a.Equal(b) }),
		query.WithLRU[*ParsedModule](parseCacheSize),
	)

	return p
}

// Text returns the file's current content, empty for deleted or unreadable
// files.
func (p *Parser) Text(ctx context.Context, f *vfs.File) (Text, error) {
	return p.texts.Get(ctx, f)
}

// Parse returns the file's syntax tree, reusing the memoized one when the
// content is unchanged. Deleted files parse as empty modules.
func (p *Parser) Parse(ctx context.Context, f *vfs.File) (*ParsedModule, error) {
	return p.parses.Get(ctx, f)
}

// ActiveParsers reports how many pooled parsers are leased right now.
func (p *Parser) ActiveParsers() int {
	return p.pool.Active()
}

func (p *Parser) parseText(f *vfs.File, text Text) (*ParsedModule, error) {
	start := time.Now()
	defer func() {
		observability.ParseDuration.Observe(time.Since(start).Seconds())
		observability.FilesParsedTotal.Inc()
	}()

	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse([]byte(text.Content), nil)
	if tree == nil {
		err := errors.New(errors.CodeInternal, "tree-sitter returned no tree")
		return nil, errors.AddContext(err, errors.CtxPath, f.Path())
	}

	module := &ParsedModule{File: f, Source: text, Tree: tree}
	module.Errors = collectParseErrors(tree.RootNode(), text, nil)
	return module, nil
}
