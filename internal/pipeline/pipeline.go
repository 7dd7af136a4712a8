// Package pipeline implements the non-transactional batch execution model
// from spec.md §4.9 / §9: an ordered sequence of operation descriptors
// submitted as one round trip and run one after another against an
// executor.Engine, each independently succeeding or failing.
package pipeline

import (
	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
)

// Kind identifies which executor operation one Op performs.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
	KindCreate
	KindDelete
	KindSchemaUpdate
	KindFind
	KindFindPaginated
	KindResolve
)

// Op is one operation descriptor, accumulated client-side by Builder and
// executed server-side by Run. Only the fields relevant to Kind are read.
type Op struct {
	Kind Kind

	// Read, Write, Resolve
	Entity types.EntityId
	Path   []indirect.Token

	// Write
	Value types.Value
	WriteOpts executor.WriteOpts

	// Create
	CreateType types.EntityTypeHandle
	CreateOpts executor.CreateOpts

	// SchemaUpdate
	Schema schema.SingleSchema

	// Find, FindPaginated
	FindType   types.EntityTypeHandle
	FindFilter string
	Page       types.PageOpts
}

// Result is the outcome of one Op: exactly one of Err or a Kind-specific
// payload is meaningful.
type Result struct {
	Err error

	Value     types.Value
	Timestamp int64 // UnixNano
	Writer    string

	EntityID types.EntityId

	Diffs []schema.Diff

	Entities   []types.EntityId
	Total      int
	TotalPages int
	PageNumber int

	Terminal indirect.Terminal
}

// Builder accumulates Ops client-side; Build returns the finished batch to
// submit in one round trip (spec.md §9, "builder-style pipeline API").
type Builder struct {
	ops []Op
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Read(entity types.EntityId, path []indirect.Token) *Builder {
	b.ops = append(b.ops, Op{Kind: KindRead, Entity: entity, Path: path})
	return b
}

func (b *Builder) Write(entity types.EntityId, path []indirect.Token, value types.Value, opts executor.WriteOpts) *Builder {
	b.ops = append(b.ops, Op{Kind: KindWrite, Entity: entity, Path: path, Value: value, WriteOpts: opts})
	return b
}

func (b *Builder) Create(t types.EntityTypeHandle, opts executor.CreateOpts) *Builder {
	b.ops = append(b.ops, Op{Kind: KindCreate, CreateType: t, CreateOpts: opts})
	return b
}

func (b *Builder) Delete(entity types.EntityId, writer string) *Builder {
	b.ops = append(b.ops, Op{Kind: KindDelete, Entity: entity, CreateOpts: executor.CreateOpts{Writer: writer}})
	return b
}

func (b *Builder) SchemaUpdate(s schema.SingleSchema) *Builder {
	b.ops = append(b.ops, Op{Kind: KindSchemaUpdate, Schema: s})
	return b
}

func (b *Builder) Find(t types.EntityTypeHandle, filter string) *Builder {
	b.ops = append(b.ops, Op{Kind: KindFind, FindType: t, FindFilter: filter})
	return b
}

func (b *Builder) FindPaginated(t types.EntityTypeHandle, page types.PageOpts, filter string) *Builder {
	b.ops = append(b.ops, Op{Kind: KindFindPaginated, FindType: t, Page: page, FindFilter: filter})
	return b
}

func (b *Builder) Resolve(entity types.EntityId, path []indirect.Token) *Builder {
	b.ops = append(b.ops, Op{Kind: KindResolve, Entity: entity, Path: path})
	return b
}

func (b *Builder) Build() []Op { return b.ops }

// Run executes ops against eng in order. Pipelines are not transactional
// (spec.md §4.9): an operation that fails still allows every other
// operation in the batch to run and report its own result.
func Run(eng *executor.Engine, ops []Op) []Result {
	results := make([]Result, len(ops))
	for i, op := range ops {
		results[i] = runOne(eng, op)
	}
	return results
}

func runOne(eng *executor.Engine, op Op) Result {
	switch op.Kind {
	case KindRead:
		v, ts, w, err := eng.Read(op.Entity, op.Path)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Value: v, Timestamp: ts.UnixNano(), Writer: w}

	case KindWrite:
		err := eng.Write(op.Entity, op.Path, op.Value, op.WriteOpts)
		return Result{Err: err}

	case KindCreate:
		id, err := eng.Create(op.CreateType, op.CreateOpts)
		if err != nil {
			return Result{Err: err}
		}
		return Result{EntityID: id}

	case KindDelete:
		err := eng.Delete(op.Entity, op.CreateOpts.Writer)
		return Result{Err: err}

	case KindSchemaUpdate:
		diffs, err := eng.SchemaUpdate(op.Schema)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Diffs: diffs}

	case KindFind:
		ids, err := eng.FindEntities(op.FindType, op.FindFilter)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Entities: ids}

	case KindFindPaginated:
		ids, total, totalPages, pageNumber, err := eng.FindEntitiesPaginated(op.FindType, op.Page, op.FindFilter)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Entities: ids, Total: total, TotalPages: totalPages, PageNumber: pageNumber}

	case KindResolve:
		terminal, err := eng.ResolveIndirection(op.Entity, op.Path)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Terminal: terminal}

	default:
		return Result{Err: types.NewError(types.ErrInvalidArguments, "unknown pipeline operation kind")}
	}
}
