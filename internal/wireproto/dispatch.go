package wireproto

import (
	"strconv"
	"strings"

	"github.com/matthewbaird/eavdb/internal/auth"
	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/intern"
	"github.com/matthewbaird/eavdb/internal/notify"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/session"
	"github.com/matthewbaird/eavdb/internal/types"
)

// preAuthVerbs are accepted before a connection completes AUTH (spec.md
// §6).
var preAuthVerbs = map[string]bool{"AUTH": true, "PING": true, "QUIT": true}

// Dispatcher maps wire verbs onto executor.Engine operations (spec.md
// §4.9).
type Dispatcher struct {
	engine        *executor.Engine
	authenticator auth.Authenticator
}

func NewDispatcher(engine *executor.Engine, authenticator auth.Authenticator) *Dispatcher {
	return &Dispatcher{engine: engine, authenticator: authenticator}
}

// SubscribeResult is returned out-of-band by Handle for a SUBSCRIBE
// command so the connection loop can start pumping the new queue; it is
// nil for every other verb.
type SubscribeResult struct {
	SubscriptionID string
	Queue          *notify.Queue
}

// Handle executes one parsed command frame for sess and returns its
// response frame. quit is true if the connection should close after
// writing the response (QUIT).
func (d *Dispatcher) Handle(sess *session.Session, args []string) (resp Frame, sub *SubscribeResult, quit bool) {
	if len(args) == 0 {
		return ErrorFrame("ARGS", "empty command"), nil, false
	}
	verb := strings.ToUpper(args[0])
	rest := args[1:]

	if !sess.Authenticated && !preAuthVerbs[verb] {
		return ErrorFrame("AUTH", "AUTH required before "+verb), nil, false
	}

	switch verb {
	case "AUTH":
		return d.handleAuth(sess, rest), nil, false
	case "PING":
		return SimpleString("PONG"), nil, false
	case "QUIT":
		return SimpleString("OK"), nil, true
	case "READ":
		return d.handleRead(rest), nil, false
	case "WRITE":
		return d.handleWrite(sess, rest, types.AdjustSet), nil, false
	case "ADD":
		return d.handleWrite(sess, rest, types.AdjustAdd), nil, false
	case "SUB":
		return d.handleWrite(sess, rest, types.AdjustSubtract), nil, false
	case "CREATE":
		return d.handleCreate(sess, rest), nil, false
	case "DELETE":
		return d.handleDelete(sess, rest), nil, false
	case "SCHEMA_UPDATE":
		return d.handleSchemaUpdate(rest), nil, false
	case "FIND":
		return d.handleFind(rest), nil, false
	case "FIND_PAGE":
		return d.handleFindPage(rest), nil, false
	case "RESOLVE":
		return d.handleResolve(rest), nil, false
	case "SUBSCRIBE":
		r, result := d.handleSubscribe(sess, rest)
		return r, result, false
	case "UNSUBSCRIBE":
		return d.handleUnsubscribe(sess, rest), nil, false
	default:
		return ErrorFrame("ARGS", "unknown verb "+verb), nil, false
	}
}

func (d *Dispatcher) handleAuth(sess *session.Session, args []string) Frame {
	if len(args) != 2 {
		return ErrorFrame("ARGS", "AUTH requires <user> <secret>")
	}
	identity, err := d.authenticator.Authenticate(args[0], args[1])
	if err != nil {
		return FromEngineError(err)
	}
	sess.Authenticate(identity)
	return SimpleString("OK")
}

func parseEntityID(s string) (types.EntityId, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return types.NoEntity, types.NewErrorf(types.ErrInvalidArguments, "bad entity id %q", s)
	}
	return types.EntityId(n), nil
}

func (d *Dispatcher) handleRead(args []string) Frame {
	if len(args) != 2 {
		return ErrorFrame("ARGS", "READ requires <entity_id> <path>")
	}
	id, err := parseEntityID(args[0])
	if err != nil {
		return FromEngineError(err)
	}
	path, err := ParsePath(d.engine.Interner(), args[1])
	if err != nil {
		return FromEngineError(err)
	}
	value, ts, writer, err := d.engine.Read(id, path)
	if err != nil {
		return FromEngineError(err)
	}
	return ArrayFrame(
		BulkText(EncodeValue(value)),
		Integer(ts.UnixNano()),
		BulkText(writer),
	)
}

func (d *Dispatcher) handleWrite(sess *session.Session, args []string, adjust types.AdjustBehavior) Frame {
	if len(args) < 3 {
		return ErrorFrame("ARGS", "WRITE requires <entity_id> <path> <value> [push_condition]")
	}
	id, err := parseEntityID(args[0])
	if err != nil {
		return FromEngineError(err)
	}
	path, err := ParsePath(d.engine.Interner(), args[1])
	if err != nil {
		return FromEngineError(err)
	}

	terminal, err := d.engine.ResolveIndirection(id, path)
	if err != nil {
		return FromEngineError(err)
	}
	variant, err := d.engine.VariantOf(terminal.Entity, terminal.Field)
	if err != nil {
		return FromEngineError(err)
	}
	value, err := DecodeValue(args[2], variant)
	if err != nil {
		return FromEngineError(err)
	}

	push := types.PushReplaceAll
	if len(args) >= 4 {
		p, err := parsePushCondition(args[3])
		if err != nil {
			return FromEngineError(err)
		}
		push = p
	}

	opts := executor.WriteOpts{Writer: sess.Identity, Adjust: adjust, Push: push}
	if err := d.engine.Write(id, path, value, opts); err != nil {
		return FromEngineError(err)
	}
	return SimpleString("OK")
}

func parsePushCondition(s string) (types.PushCondition, error) {
	switch strings.ToUpper(s) {
	case "REPLACE_ALL":
		return types.PushReplaceAll, nil
	case "ALWAYS":
		return types.PushAlways, nil
	case "ADD_IF_MISSING":
		return types.PushAddIfMissing, nil
	case "REMOVE_IF_PRESENT":
		return types.PushRemoveIfPresent, nil
	default:
		return 0, types.NewErrorf(types.ErrInvalidArguments, "unknown push_condition %q", s)
	}
}

func (d *Dispatcher) handleCreate(sess *session.Session, args []string) Frame {
	if len(args) < 1 {
		return ErrorFrame("ARGS", "CREATE requires <type> [parent_id|-] [name|-]")
	}
	t, ok := d.engine.Interner().LookupEntityType(args[0])
	if !ok {
		return ErrorFrame("NOENT", "unknown entity type "+args[0])
	}
	opts := executor.CreateOpts{Writer: sess.Identity}
	if len(args) >= 2 && args[1] != "-" {
		pid, err := parseEntityID(args[1])
		if err != nil {
			return FromEngineError(err)
		}
		opts.Parent, opts.HasParent = pid, true
	}
	if len(args) >= 3 && args[2] != "-" {
		opts.Name, opts.HasName = args[2], true
	}
	id, err := d.engine.Create(t, opts)
	if err != nil {
		return FromEngineError(err)
	}
	return Integer(int64(id))
}

func (d *Dispatcher) handleDelete(sess *session.Session, args []string) Frame {
	if len(args) != 1 {
		return ErrorFrame("ARGS", "DELETE requires <entity_id>")
	}
	id, err := parseEntityID(args[0])
	if err != nil {
		return FromEngineError(err)
	}
	if err := d.engine.Delete(id, sess.Identity); err != nil {
		return FromEngineError(err)
	}
	return SimpleString("OK")
}

// handleSchemaUpdate parses:
//   SCHEMA_UPDATE <type> <parents_csv_or_-> <fields>
// where <fields> is ';'-separated entries of
//   name:variant:default_wire:rank:scope:inverse_or_-
func (d *Dispatcher) handleSchemaUpdate(args []string) Frame {
	if len(args) != 3 {
		return ErrorFrame("ARGS", "SCHEMA_UPDATE requires <type> <parents> <fields>")
	}
	in := d.engine.Interner()
	t := in.InternEntityType(args[0])

	var parents []types.EntityTypeHandle
	if args[1] != "-" {
		for _, name := range strings.Split(args[1], ",") {
			parents = append(parents, in.InternEntityType(name))
		}
	}

	fields := make(map[string]schema.FieldSchema)
	if args[2] != "-" {
		for _, entry := range strings.Split(args[2], ";") {
			fs, err := parseFieldSchema(in, entry)
			if err != nil {
				return FromEngineError(err)
			}
			fields[fs.Name] = fs
		}
	}

	diffs, err := d.engine.SchemaUpdate(schema.SingleSchema{Type: t, Parents: parents, Fields: fields})
	if err != nil {
		return FromEngineError(err)
	}
	items := make([]Frame, len(diffs))
	for i, diff := range diffs {
		items[i] = BulkText(formatDiff(in, diff))
	}
	return ArrayFrame(items...)
}

func parseFieldSchema(in *intern.Interner, entry string) (schema.FieldSchema, error) {
	parts := strings.Split(entry, ":")
	if len(parts) < 6 {
		return schema.FieldSchema{}, types.NewErrorf(types.ErrInvalidArguments, "bad field schema entry %q", entry)
	}
	// default_wire may itself contain ':' (tagged wire values such as "s:x"),
	// so it is everything between the variant and the last three parts.
	n := len(parts)
	name, variantName, rankStr, scopeStr, inverse := parts[0], parts[1], parts[n-3], parts[n-2], parts[n-1]
	defaultWire := strings.Join(parts[2:n-3], ":")

	variant, err := parseVariantName(variantName)
	if err != nil {
		return schema.FieldSchema{}, err
	}
	def, err := DecodeValue(defaultWire, variant)
	if err != nil {
		return schema.FieldSchema{}, err
	}
	rank, err := strconv.Atoi(rankStr)
	if err != nil {
		return schema.FieldSchema{}, types.NewErrorf(types.ErrInvalidArguments, "bad rank %q", rankStr)
	}
	scope := types.ScopeRuntime
	if strings.EqualFold(scopeStr, "cfg") {
		scope = types.ScopeConfiguration
	}
	if inverse == "-" {
		inverse = ""
	}

	return schema.FieldSchema{
		Handle:    in.InternFieldType(name),
		Name:      name,
		Variant:   variant,
		Default:   def,
		Rank:      rank,
		Scope:     scope,
		InverseOf: inverse,
	}, nil
}

func parseVariantName(s string) (types.Variant, error) {
	switch strings.ToLower(s) {
	case "bool":
		return types.VariantBool, nil
	case "int":
		return types.VariantInt, nil
	case "float":
		return types.VariantFloat, nil
	case "string":
		return types.VariantString, nil
	case "blob":
		return types.VariantBlob, nil
	case "timestamp":
		return types.VariantTimestamp, nil
	case "entity_reference":
		return types.VariantEntityReference, nil
	case "entity_list":
		return types.VariantEntityList, nil
	case "choice":
		return types.VariantChoice, nil
	default:
		return 0, types.NewErrorf(types.ErrInvalidArguments, "unknown variant name %q", s)
	}
}

func formatDiff(in *intern.Interner, d schema.Diff) string {
	typeName, _ := in.ResolveEntityType(d.Type)
	added := make([]string, len(d.Added))
	for i, fs := range d.Added {
		added[i] = fs.Name
	}
	removed := make([]string, len(d.Removed))
	for i, h := range d.Removed {
		name, _ := in.ResolveFieldType(h)
		removed[i] = name
	}
	return typeName + " +[" + strings.Join(added, ",") + "] -[" + strings.Join(removed, ",") + "]"
}

func (d *Dispatcher) handleFind(args []string) Frame {
	if len(args) < 1 {
		return ErrorFrame("ARGS", "FIND requires <type> [filter|-]")
	}
	t, ok := d.engine.Interner().LookupEntityType(args[0])
	if !ok {
		return ErrorFrame("NOENT", "unknown entity type "+args[0])
	}
	filter := ""
	if len(args) >= 2 && args[1] != "-" {
		filter = args[1]
	}
	ids, err := d.engine.FindEntities(t, filter)
	if err != nil {
		return FromEngineError(err)
	}
	return entityIDArray(ids)
}

func (d *Dispatcher) handleFindPage(args []string) Frame {
	if len(args) < 3 {
		return ErrorFrame("ARGS", "FIND_PAGE requires <type> <page_size> <page_number> [filter|-]")
	}
	t, ok := d.engine.Interner().LookupEntityType(args[0])
	if !ok {
		return ErrorFrame("NOENT", "unknown entity type "+args[0])
	}
	size, err1 := strconv.Atoi(args[1])
	number, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return ErrorFrame("ARGS", "page_size/page_number must be integers")
	}
	filter := ""
	if len(args) >= 4 && args[3] != "-" {
		filter = args[3]
	}
	ids, total, totalPages, pageNumber, err := d.engine.FindEntitiesPaginated(t, types.PageOpts{PageSize: size, PageNumber: number}, filter)
	if err != nil {
		return FromEngineError(err)
	}
	return ArrayFrame(entityIDArray(ids), Integer(int64(total)), Integer(int64(totalPages)), Integer(int64(pageNumber)))
}

func (d *Dispatcher) handleResolve(args []string) Frame {
	if len(args) != 2 {
		return ErrorFrame("ARGS", "RESOLVE requires <entity_id> <path>")
	}
	id, err := parseEntityID(args[0])
	if err != nil {
		return FromEngineError(err)
	}
	path, err := ParsePath(d.engine.Interner(), args[1])
	if err != nil {
		return FromEngineError(err)
	}
	terminal, err := d.engine.ResolveIndirection(id, path)
	if err != nil {
		return FromEngineError(err)
	}
	return ArrayFrame(Integer(int64(terminal.Entity)), Integer(int64(terminal.Field)))
}

func entityIDArray(ids []types.EntityId) Frame {
	items := make([]Frame, len(ids))
	for i, id := range ids {
		items[i] = Integer(int64(id))
	}
	return ArrayFrame(items...)
}

// handleSubscribe parses:
//   SUBSCRIBE ON_ENTITY <entity_id> <field> <true|false> [ctx1;ctx2;...|-]
//   SUBSCRIBE ON_TYPE   <type_name> <field> <true|false> [ctx1;ctx2;...|-]
// and registers a notify.Config delivering to a freshly created queue,
// tracked against sess so it is torn down when the connection closes
// (spec.md §4.8, §5).
func (d *Dispatcher) handleSubscribe(sess *session.Session, args []string) (Frame, *SubscribeResult) {
	if len(args) < 3 {
		return ErrorFrame("ARGS", "SUBSCRIBE requires <ON_ENTITY|ON_TYPE> <target> <field> <true|false> [context]"), nil
	}
	in := d.engine.Interner()

	var target notify.Target
	switch strings.ToUpper(args[0]) {
	case "ON_ENTITY":
		id, err := parseEntityID(args[1])
		if err != nil {
			return FromEngineError(err), nil
		}
		target = notify.Target{Entity: id, HasEntity: true}
	case "ON_TYPE":
		t, ok := in.LookupEntityType(args[1])
		if !ok {
			return ErrorFrame("NOENT", "unknown entity type "+args[1]), nil
		}
		target = notify.Target{Type: t}
	default:
		return ErrorFrame("ARGS", "first argument must be ON_ENTITY or ON_TYPE"), nil
	}

	field := in.InternFieldType(args[2])

	trigger := false
	if len(args) >= 4 {
		trigger = strings.EqualFold(args[3], "true")
	}

	var rawPaths []string
	if len(args) >= 5 && args[4] != "-" {
		rawPaths = strings.Split(args[4], ";")
	}
	cfgContext := make([][]indirect.Token, 0, len(rawPaths))
	for _, raw := range rawPaths {
		tokens, err := ParsePath(in, raw)
		if err != nil {
			return FromEngineError(err), nil
		}
		cfgContext = append(cfgContext, tokens)
	}

	cfg := notify.Config{Target: target, Field: field, TriggerOnChange: trigger, Context: cfgContext}
	queue := notify.NewQueue(256)
	id := d.engine.Notify().Register(cfg, queue)
	sess.TrackSubscription(id)

	return BulkText(id), &SubscribeResult{SubscriptionID: id, Queue: queue}
}

func (d *Dispatcher) handleUnsubscribe(sess *session.Session, args []string) Frame {
	if len(args) != 1 {
		return ErrorFrame("ARGS", "UNSUBSCRIBE requires <subscription_id>")
	}
	d.engine.Notify().Unregister(args[0])
	return SimpleString("OK")
}
