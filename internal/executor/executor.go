// Package executor implements the top-level operation dispatcher from
// spec.md §4.6: read, write (with adjust/push modes), create, delete,
// schema-update, find, paginated-find, and indirection resolution. It
// composes internal/schema, internal/store, internal/relation,
// internal/indirect, and internal/notify behind one lock so every
// operation observes (and leaves) a consistent snapshot of engine state
// (spec.md §5).
package executor

import (
	"sync"
	"time"

	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/intern"
	"github.com/matthewbaird/eavdb/internal/notify"
	"github.com/matthewbaird/eavdb/internal/relation"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/store"
	"github.com/matthewbaird/eavdb/internal/types"
)

// Evaluator is the external expression-evaluator hook (spec.md §6): given
// an expression string and a field lookup bound to one candidate entity,
// it returns whether the entity passes the filter.
type Evaluator interface {
	Evaluate(expr string, lookup func(fieldName string) (types.Value, bool)) (bool, error)
}

// Engine is one EAV store instance: interner, schema registry, entity
// store, and relationship manager, all guarded by a single reader/writer
// lock (spec.md §5, "a single logical reader/writer lock").
type Engine struct {
	mu sync.RWMutex

	interner *intern.Interner
	registry *schema.Registry
	store    *store.Store
	relation *relation.Manager
	notify   *notify.Registry
	eval     Evaluator

	parentField   types.FieldTypeHandle
	childrenField types.FieldTypeHandle
	nameField     types.FieldTypeHandle
}

// New builds an Engine with fresh, empty state. eval may be nil, in which
// case FindEntities/FindEntitiesPaginated reject any non-empty filter
// string (callers needing filtering must supply the reference evaluator
// from internal/filter or their own).
func New(eval Evaluator) *Engine {
	in := intern.NewInterner()
	reg := schema.NewRegistry()
	st := store.New()

	parentField := in.InternFieldType("Parent")
	childrenField := in.InternFieldType("Children")
	nameField := in.InternFieldType("Name")

	rel := relation.NewManager(reg, st, parentField, childrenField)

	return &Engine{
		interner:      in,
		registry:      reg,
		store:         st,
		relation:      rel,
		notify:        notify.NewRegistry(),
		eval:          eval,
		parentField:   parentField,
		childrenField: childrenField,
		nameField:     nameField,
	}
}

func (e *Engine) Interner() *intern.Interner  { return e.interner }
func (e *Engine) Notify() *notify.Registry    { return e.notify }
func (e *Engine) NameField() types.FieldTypeHandle { return e.nameField }
func (e *Engine) ParentField() types.FieldTypeHandle { return e.parentField }
func (e *Engine) ChildrenField() types.FieldTypeHandle { return e.childrenField }

// Read resolves path from id and returns the terminal cell's value,
// timestamp, and writer (spec.md §4.6 Read).
func (e *Engine) Read(id types.EntityId, path []indirect.Token) (types.Value, time.Time, string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	terminal, err := indirect.Resolve(e.store, id, path)
	if err != nil {
		return types.Value{}, time.Time{}, "", err
	}
	cell, err := e.store.ReadCell(terminal.Entity, terminal.Field)
	if err != nil {
		return types.Value{}, time.Time{}, "", err
	}
	return cell.Value, cell.Timestamp, cell.Writer, nil
}

// WriteOpts carries the optional modifiers to a Write operation (spec.md
// §4.6).
type WriteOpts struct {
	Timestamp      time.Time // used only when HasTimestamp is set; otherwise "now"
	Writer         string
	Adjust         types.AdjustBehavior
	Push           types.PushCondition
	HasTimestamp   bool
}

// Write resolves path, validates and applies value per opts, updates
// relationship invariants for reference/list fields, and dispatches
// notifications (spec.md §4.6 Write).
func (e *Engine) Write(id types.EntityId, path []indirect.Token, value types.Value, opts WriteOpts) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeLocked(id, path, value, opts)
}

func (e *Engine) writeLocked(id types.EntityId, path []indirect.Token, value types.Value, opts WriteOpts) error {
	terminal, err := indirect.Resolve(e.store, id, path)
	if err != nil {
		return err
	}
	return e.writeCellLocked(terminal.Entity, terminal.Field, value, opts)
}

func (e *Engine) writeCellLocked(entity types.EntityId, field types.FieldTypeHandle, value types.Value, opts WriteOpts) error {
	entityType, ok := e.store.TypeOf(entity)
	if !ok {
		return types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", entity)
	}
	fs, err := e.registry.FieldSchemaFor(entityType, field)
	if err != nil {
		return err
	}
	oldCell, err := e.store.ReadCell(entity, field)
	if err != nil {
		return err
	}

	newValue, err := applyAdjustAndPush(fs.Variant, oldCell.Value, value, opts.Adjust, opts.Push)
	if err != nil {
		return err
	}

	if field == e.parentField {
		if newParent, has := newValue.Reference(); has {
			if newParent == entity || e.isDescendant(entity, newParent) {
				return types.NewErrorf(types.ErrInvalidArguments, "entity %d cannot become its own descendant's child (parent %d)", entity, newParent)
			}
		}
	}

	now := opts.Timestamp
	if !opts.HasTimestamp {
		now = time.Now()
	}
	newCell := types.FieldCell{Value: newValue, Timestamp: now, Writer: opts.Writer}
	if err := e.store.WriteCell(entity, field, newCell); err != nil {
		return err
	}

	e.dispatch(entityType, entity, field, oldCell, newCell)

	stamp := e.relationStamp(now, opts.Writer)
	switch fs.Variant {
	case types.VariantEntityReference:
		if err := e.relation.OnReferenceWrite(entity, field, oldCell.Value, newValue, stamp); err != nil {
			return err
		}
	case types.VariantEntityList:
		if err := e.relation.OnListWrite(entity, field, oldCell.Value, newValue, stamp); err != nil {
			return err
		}
	}
	return nil
}

// relationStamp builds the callback the relationship manager uses to
// perform an induced write on some other entity's inverse field: it writes
// the cell directly and dispatches notifications, but does not recurse
// back into relationship maintenance (the manager has already computed the
// full symmetric fixup; re-entering it here would loop forever between a
// field and its declared inverse).
func (e *Engine) relationStamp(now time.Time, writer string) func(types.EntityId, types.FieldTypeHandle, types.Value) error {
	return func(entity types.EntityId, field types.FieldTypeHandle, value types.Value) error {
		entityType, ok := e.store.TypeOf(entity)
		if !ok {
			return nil // target no longer exists; nothing to stamp
		}
		oldCell, err := e.store.ReadCell(entity, field)
		if err != nil {
			return nil
		}
		newCell := types.FieldCell{Value: value, Timestamp: now, Writer: writer}
		if err := e.store.WriteCell(entity, field, newCell); err != nil {
			return err
		}
		e.dispatch(entityType, entity, field, oldCell, newCell)
		return nil
	}
}

func (e *Engine) dispatch(entityType types.EntityTypeHandle, entity types.EntityId, field types.FieldTypeHandle, oldCell, newCell types.FieldCell) {
	e.notify.Dispatch(entityType, entity, field,
		notify.Snapshot{Value: oldCell.Value, Timestamp: oldCell.Timestamp.UnixNano(), Writer: oldCell.Writer},
		notify.Snapshot{Value: newCell.Value, Timestamp: newCell.Timestamp.UnixNano(), Writer: newCell.Writer},
		contextResolver{e.store})
}

type contextResolver struct{ store *store.Store }

func (r contextResolver) ResolveContext(entity types.EntityId, path []indirect.Token) (types.Value, error) {
	terminal, err := indirect.Resolve(r.store, entity, path)
	if err != nil {
		return types.Value{}, err
	}
	cell, err := r.store.ReadCell(terminal.Entity, terminal.Field)
	if err != nil {
		return types.Value{}, err
	}
	return cell.Value, nil
}

// CreateOpts carries the optional arguments to Create (spec.md §4.3).
type CreateOpts struct {
	Parent    types.EntityId
	HasParent bool
	Name      string
	HasName   bool
	Writer    string
}

// Create materializes a new entity of type t per spec.md §4.3.
func (e *Engine) Create(t types.EntityTypeHandle, opts CreateOpts) (types.EntityId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	complete, err := e.registry.CompleteSchema(t)
	if err != nil {
		return types.NoEntity, err
	}

	now := time.Now()
	fields := make(map[types.FieldTypeHandle]types.FieldCell, len(complete.Fields))
	for h, fs := range complete.Fields {
		fields[h] = types.FieldCell{Value: fs.Default.Clone(), Timestamp: now, Writer: opts.Writer}
	}
	if opts.HasName {
		if _, ok := complete.Fields[e.nameField]; ok {
			fields[e.nameField] = types.FieldCell{Value: types.StringValue(opts.Name), Timestamp: now, Writer: opts.Writer}
		}
	}
	if opts.HasParent {
		if _, ok := complete.Fields[e.parentField]; ok {
			fields[e.parentField] = types.FieldCell{Value: types.ReferenceValue(opts.Parent), Timestamp: now, Writer: opts.Writer}
		}
	}

	id := e.store.CreateEntity(t, fields)

	if opts.HasParent {
		if _, ok := complete.Fields[e.parentField]; ok {
			stamp := e.relationStamp(now, opts.Writer)
			if err := e.relation.OnReferenceWrite(id, e.parentField, types.NullReference(), types.ReferenceValue(opts.Parent), stamp); err != nil {
				return types.NoEntity, err
			}
		}
	}

	for h, fs := range complete.Fields {
		final := fields[h]
		e.dispatch(t, id, h,
			types.FieldCell{Value: fs.Default, Timestamp: now, Writer: ""},
			final)
	}

	return id, nil
}

// Delete removes id and cascades through Children, cleaning up every
// inbound reference/list cell that pointed at a deleted entity (spec.md
// §4.3).
func (e *Engine) Delete(id types.EntityId, writer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.EntityExists(id) {
		return types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", id)
	}

	var parentOfVictim types.EntityId
	hadParent := false
	if victimType, ok := e.store.TypeOf(id); ok {
		if _, declares := mustComplete(e.registry, victimType).Fields[e.parentField]; declares {
			if cell, err := e.store.ReadCell(id, e.parentField); err == nil {
				if ref, has := cell.Value.Reference(); has && ref != types.NoEntity {
					parentOfVictim, hadParent = ref, true
				}
			}
		}
	}

	order := e.postorderDescendants(id)
	now := time.Now()
	stamp := e.relationStamp(now, writer)

	for _, victim := range order {
		if err := e.relation.DetachInbound(victim, stamp); err != nil {
			return err
		}
		if err := e.store.DeleteEntity(victim); err != nil {
			return err
		}
	}

	if hadParent && e.store.EntityExists(parentOfVictim) {
		if err := stamp(parentOfVictim, e.childrenField, removeFromStoredList(e.store, parentOfVictim, e.childrenField, id)); err != nil {
			return err
		}
	}
	return nil
}

func removeFromStoredList(st *store.Store, id types.EntityId, field types.FieldTypeHandle, remove types.EntityId) types.Value {
	cell, err := st.ReadCell(id, field)
	if err != nil {
		return types.ListValue(nil)
	}
	list := cell.Value.List()
	out := make([]types.EntityId, 0, len(list))
	for _, x := range list {
		if x != remove {
			out = append(out, x)
		}
	}
	return types.ListValue(out)
}

// postorderDescendants returns id and every transitive Children descendant
// in postorder (leaves first, id last) — "reverse-topological order" per
// spec.md §4.3 step 3.
func (e *Engine) postorderDescendants(id types.EntityId) []types.EntityId {
	var order []types.EntityId
	visited := map[types.EntityId]bool{}
	var visit func(types.EntityId)
	visit = func(cur types.EntityId) {
		if visited[cur] {
			return // invariant 4 forbids Children cycles, but guard anyway
		}
		visited[cur] = true
		t, ok := e.store.TypeOf(cur)
		if ok {
			if complete, err := e.registry.CompleteSchema(t); err == nil {
				if _, declares := complete.Fields[e.childrenField]; declares {
					if cell, err := e.store.ReadCell(cur, e.childrenField); err == nil {
						for _, child := range cell.Value.List() {
							visit(child)
						}
					}
				}
			}
		}
		order = append(order, cur)
	}
	visit(id)
	return order
}

// isDescendant reports whether candidate is id itself or reachable from id
// via the Children field — used to reject a Parent write that would close
// a cycle in the Parent/Children tree (spec.md §9 REDESIGN FLAGS, "write of
// Parent must verify the new parent is not a descendant of the moved
// entity").
func (e *Engine) isDescendant(id, candidate types.EntityId) bool {
	if id == candidate {
		return true
	}
	visited := map[types.EntityId]bool{id: true}
	queue := []types.EntityId{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := e.store.TypeOf(cur)
		if !ok {
			continue
		}
		complete, err := e.registry.CompleteSchema(t)
		if err != nil {
			continue
		}
		if _, declares := complete.Fields[e.childrenField]; !declares {
			continue
		}
		cell, err := e.store.ReadCell(cur, e.childrenField)
		if err != nil {
			continue
		}
		for _, child := range cell.Value.List() {
			if child == candidate {
				return true
			}
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	return false
}

func mustComplete(reg *schema.Registry, t types.EntityTypeHandle) *schema.CompleteSchema {
	c, err := reg.CompleteSchema(t)
	if err != nil {
		return &schema.CompleteSchema{Fields: map[types.FieldTypeHandle]schema.FieldSchema{}}
	}
	return c
}

// SchemaUpdate installs single and applies the resulting per-type diffs to
// every live entity (spec.md §4.2).
func (e *Engine) SchemaUpdate(single schema.SingleSchema) ([]schema.Diff, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	diffs, err := e.registry.UpdateSchema(single)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, d := range diffs {
		added := make(map[types.FieldTypeHandle]types.Value, len(d.Added))
		for _, fs := range d.Added {
			added[fs.Handle] = fs.Default
		}
		e.store.ApplyDiff(d.Type, added, d.Removed, now, "")
	}
	return diffs, nil
}

// FindEntities returns the type bucket for t, optionally narrowed by an
// evaluator-backed filter expression (spec.md §4.6).
func (e *Engine) FindEntities(t types.EntityTypeHandle, filterExpr string) ([]types.EntityId, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.findLocked(t, filterExpr)
}

func (e *Engine) findLocked(t types.EntityTypeHandle, filterExpr string) ([]types.EntityId, error) {
	all := e.store.ListEntitiesOfType(t)
	if filterExpr == "" {
		return all, nil
	}
	if e.eval == nil {
		return nil, types.NewError(types.ErrInvalidArguments, "no filter evaluator configured")
	}
	out := make([]types.EntityId, 0, len(all))
	for _, id := range all {
		ok, err := e.eval.Evaluate(filterExpr, e.fieldLookup(id))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) fieldLookup(id types.EntityId) func(string) (types.Value, bool) {
	return func(name string) (types.Value, bool) {
		h, ok := e.interner.LookupFieldType(name)
		if !ok {
			return types.Value{}, false
		}
		cell, err := e.store.ReadCell(id, h)
		if err != nil {
			return types.Value{}, false
		}
		return cell.Value, true
	}
}

// FindEntitiesPaginated is FindEntities with a result page carved out of
// the matched set (spec.md §4.6).
func (e *Engine) FindEntitiesPaginated(t types.EntityTypeHandle, opts types.PageOpts, filterExpr string) (page []types.EntityId, total, totalPages, pageNumber int, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if opts.PageSize <= 0 {
		return nil, 0, 0, 0, types.NewError(types.ErrInvalidArguments, "page_size must be positive")
	}
	all, err := e.findLocked(t, filterExpr)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	total = len(all)
	totalPages = (total + opts.PageSize - 1) / opts.PageSize
	pageNumber = opts.PageNumber
	start := (pageNumber - 1) * opts.PageSize
	if start < 0 || start >= total {
		return []types.EntityId{}, total, totalPages, pageNumber, nil
	}
	end := start + opts.PageSize
	if end > total {
		end = total
	}
	page = make([]types.EntityId, end-start)
	copy(page, all[start:end])
	return page, total, totalPages, pageNumber, nil
}

// VariantOf returns the declared variant for (entity's type, field), used
// by the wire layer to decode a value literal before calling Write.
func (e *Engine) VariantOf(entity types.EntityId, field types.FieldTypeHandle) (types.Variant, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.store.TypeOf(entity)
	if !ok {
		return 0, types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", entity)
	}
	fs, err := e.registry.FieldSchemaFor(t, field)
	if err != nil {
		return 0, err
	}
	return fs.Variant, nil
}

// CompleteSchemaFor returns the closed-over schema for t (spec.md §4.2),
// for callers that need to list a type's declared fields (e.g. an admin
// inspector or the snapshot/restore hooks).
func (e *Engine) CompleteSchemaFor(t types.EntityTypeHandle) (*schema.CompleteSchema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.CompleteSchema(t)
}

// ResolveIndirection returns the terminal (entity, field) pair path names
// without reading it (spec.md §4.6).
func (e *Engine) ResolveIndirection(start types.EntityId, path []indirect.Token) (indirect.Terminal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return indirect.Resolve(e.store, start, path)
}

// applyAdjustAndPush validates input against variant and computes the
// final value to store, applying Set/Add/Subtract for numeric fields and
// the four push conditions for EntityList fields (spec.md §4.6).
func applyAdjustAndPush(variant types.Variant, oldVal, input types.Value, adjust types.AdjustBehavior, push types.PushCondition) (types.Value, error) {
	switch variant {
	case types.VariantInt:
		if input.Variant() != types.VariantInt {
			return types.Value{}, types.NewErrorf(types.ErrValueVariantMismatch, "expected int, got %s", input.Variant())
		}
		switch adjust {
		case types.AdjustSet:
			return input, nil
		case types.AdjustAdd:
			sum, overflow := addOverflowInt64(oldVal.Int(), input.Int())
			if overflow {
				return types.Value{}, types.NewError(types.ErrArithmeticOverflow, "int addition overflowed")
			}
			return types.IntValue(sum), nil
		case types.AdjustSubtract:
			diff, overflow := subOverflowInt64(oldVal.Int(), input.Int())
			if overflow {
				return types.Value{}, types.NewError(types.ErrArithmeticOverflow, "int subtraction overflowed")
			}
			return types.IntValue(diff), nil
		}
		return types.Value{}, types.NewError(types.ErrAdjustInapplicable, "unknown adjust behavior")

	case types.VariantFloat:
		if input.Variant() != types.VariantFloat {
			return types.Value{}, types.NewErrorf(types.ErrValueVariantMismatch, "expected float, got %s", input.Variant())
		}
		switch adjust {
		case types.AdjustSet:
			return input, nil
		case types.AdjustAdd:
			return types.FloatValue(oldVal.Float() + input.Float()), nil
		case types.AdjustSubtract:
			return types.FloatValue(oldVal.Float() - input.Float()), nil
		}
		return types.Value{}, types.NewError(types.ErrAdjustInapplicable, "unknown adjust behavior")

	case types.VariantEntityList:
		if adjust != types.AdjustSet {
			return types.Value{}, types.NewError(types.ErrAdjustInapplicable, "adjust behaviors do not apply to entity_list fields")
		}
		if input.Variant() != types.VariantEntityList {
			return types.Value{}, types.NewErrorf(types.ErrValueVariantMismatch, "expected entity_list, got %s", input.Variant())
		}
		return mergeList(oldVal.List(), input.List(), push)

	default:
		if adjust != types.AdjustSet {
			return types.Value{}, types.NewError(types.ErrAdjustInapplicable, "adjust behaviors only apply to int and float fields")
		}
		if input.Variant() != variant {
			return types.Value{}, types.NewErrorf(types.ErrValueVariantMismatch, "expected %s, got %s", variant, input.Variant())
		}
		return input, nil
	}
}

func mergeList(old, input []types.EntityId, push types.PushCondition) (types.Value, error) {
	switch push {
	case types.PushReplaceAll:
		if hasDuplicate(input) {
			return types.Value{}, types.NewError(types.ErrInvalidArguments, "entity_list value contains duplicate entities")
		}
		return types.ListValue(input), nil

	case types.PushAddIfMissing:
		out := append([]types.EntityId{}, old...)
		present := toSet(old)
		for _, id := range input {
			if !present[id] {
				out = append(out, id)
				present[id] = true
			}
		}
		return types.ListValue(out), nil

	case types.PushAlways:
		out := append([]types.EntityId{}, old...)
		present := toSet(old)
		for _, id := range input {
			if present[id] {
				return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "entity %d already present in list", id)
			}
			out = append(out, id)
			present[id] = true
		}
		return types.ListValue(out), nil

	case types.PushRemoveIfPresent:
		remove := toSet(input)
		out := make([]types.EntityId, 0, len(old))
		for _, id := range old {
			if !remove[id] {
				out = append(out, id)
			}
		}
		return types.ListValue(out), nil

	default:
		return types.Value{}, types.NewError(types.ErrInvalidArguments, "unknown push_condition")
	}
}

func toSet(ids []types.EntityId) map[types.EntityId]bool {
	out := make(map[types.EntityId]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func hasDuplicate(ids []types.EntityId) bool {
	seen := make(map[types.EntityId]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

func addOverflowInt64(a, b int64) (int64, bool) {
	sum := a + b
	overflow := (b > 0 && sum < a) || (b < 0 && sum > a)
	return sum, overflow
}

func subOverflowInt64(a, b int64) (int64, bool) {
	diff := a - b
	overflow := (b < 0 && diff < a) || (b > 0 && diff > a)
	return diff, overflow
}

// EntitySnapshot is one entity's configuration-scoped field values, the
// unit the snapshot hook emits and consumes (spec.md §6).
type EntitySnapshot struct {
	ID     types.EntityId
	Type   types.EntityTypeHandle
	Fields map[types.FieldTypeHandle]types.Value
}

// ExportConfiguration walks every live entity and collects the values of
// fields whose schema marks them ScopeConfiguration, the data the snapshot
// hook is responsible for persisting (spec.md §6: "iterate every entity
// whose schema's storage_scope includes Configuration").
func (e *Engine) ExportConfiguration() ([]EntitySnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []EntitySnapshot
	for _, t := range e.store.ListAllTypes() {
		complete, err := e.registry.CompleteSchema(t)
		if err != nil {
			return nil, err
		}
		var scoped []types.FieldTypeHandle
		for _, h := range complete.Order {
			if complete.Fields[h].Scope == types.ScopeConfiguration {
				scoped = append(scoped, h)
			}
		}
		if len(scoped) == 0 {
			continue
		}
		for _, id := range e.store.ListEntitiesOfType(t) {
			cells, err := e.store.Fields(id)
			if err != nil {
				continue
			}
			fields := make(map[types.FieldTypeHandle]types.Value, len(scoped))
			for _, h := range scoped {
				if cell, ok := cells[h]; ok {
					fields[h] = cell.Value.Clone()
				}
			}
			out = append(out, EntitySnapshot{ID: id, Type: t, Fields: fields})
		}
	}
	return out, nil
}

// RestoreConfiguration writes back previously exported configuration field
// values. Snapshots naming an entity that no longer exists, or a field the
// current schema no longer declares, are skipped rather than treated as
// errors — schema and population may have moved on since the snapshot was
// taken.
func (e *Engine) RestoreConfiguration(snaps []EntitySnapshot, writer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, snap := range snaps {
		if !e.store.EntityExists(snap.ID) {
			continue
		}
		actualType, _ := e.store.TypeOf(snap.ID)
		if actualType != snap.Type {
			continue
		}
		for field, value := range snap.Fields {
			if _, err := e.registry.FieldSchemaFor(snap.Type, field); err != nil {
				continue
			}
			_ = e.store.WriteCell(snap.ID, field, types.FieldCell{
				Value:     value.Clone(),
				Timestamp: now,
				Writer:    writer,
			})
		}
	}
	return nil
}
