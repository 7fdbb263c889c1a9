// # internal/engine/parser/pool.go
package parser

import (
	"sync"
	"sync/atomic"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool recycles tree-sitter parser instances to avoid the per-file
// allocation overhead of sitter.NewParser() / parser.Close(). Each pool is
// tied to one grammar.
//
// Usage:
//
//	sp := pool.Get()
//	defer pool.Put(sp)
//	tree := sp.Parse(source, nil)
//
// Safe for use by multiple goroutines simultaneously.
type ParserPool struct {
	lang   *sitter.Language
	pool   sync.Pool
	active atomic.Int64
}

// NewParserPool creates a pool for the given grammar. The language must
// remain valid for the lifetime of the pool.
func NewParserPool(lang *sitter.Language) *ParserPool {
	p := &ParserPool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

// Get retrieves a parser configured for the pool's language, allocating one
// if the pool is empty.
func (p *ParserPool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// The language survives Reset, but not an external SetLanguage.
	sp.SetLanguage(p.lang)
	p.active.Add(1)
	return sp
}

// Put returns a parser for reuse. The parser is reset first so no references
// to previous parse trees are retained. Callers must not use sp after Put.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.active.Add(-1)
	sp.Reset()
	p.pool.Put(sp)
}

// Active returns the number of parsers currently leased out.
func (p *ParserPool) Active() int {
	return int(p.active.Load())
}
