package semantic

import (
	"context"

	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/parser"
	"pyscope/internal/engine/query"
)

// Indexer memoizes semantic indexes per file. Structural equality of the
// index cuts invalidation off: a reparse that yields the same scopes,
// bindings and expression spans does not disturb downstream queries.
type Indexer struct {
	parser  *parser.Parser
	indexes *query.Query[*vfs.File, *Index]
}

func NewIndexer(e *query.Engine, p *parser.Parser) *Indexer {
	ix := &Indexer{parser: p}
	ix.indexes = query.NewQuery(e, "semantic.index",
		func(ctx *query.Ctx, f *vfs.File) (*Index, error) {
			pm, err := p.Parse(ctx, f)
			if err != nil {
				return nil, err
			}
			return BuildIndex(pm), nil
		},
		query.WithEquals(func(a, b *Index) bool { return a.Equal(b) }),
	)
	return ix
}

// Index returns the file's semantic index, building it on first use.
func (ix *Indexer) Index(ctx context.Context, f *vfs.File) (*Index, error) {
	return ix.indexes.Get(ctx, f)
}
