// Package snapshot implements the YAML-encoded form of the engine's
// configuration-scope snapshot hook (spec.md §6: "snapshot(writer) -> (),
// restore(reader) -> (): iterate every entity whose schema's storage_scope
// includes Configuration, emitting (id, type, field_values...). Format is
// implementation-defined.").
package snapshot

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/matthewbaird/eavdb/internal/wireproto"
)

// document is the on-disk YAML shape: one entry per entity, field values
// keyed by name (not handle, so a snapshot survives interner renumbering
// across process restarts as long as names are stable).
type document struct {
	Version  int              `yaml:"version"`
	Entities []entityDocument `yaml:"entities"`
}

type entityDocument struct {
	ID     uint64            `yaml:"id"`
	Type   string            `yaml:"type"`
	Fields map[string]string `yaml:"fields"`
}

const formatVersion = 1

// Write serializes the engine's current configuration-scoped state to w as
// YAML.
func Write(w io.Writer, eng *executor.Engine) error {
	snaps, err := eng.ExportConfiguration()
	if err != nil {
		return err
	}
	in := eng.Interner()

	doc := document{Version: formatVersion, Entities: make([]entityDocument, 0, len(snaps))}
	for _, s := range snaps {
		typeName, _ := in.ResolveEntityType(s.Type)
		fields := make(map[string]string, len(s.Fields))
		for h, v := range s.Fields {
			name, ok := in.ResolveFieldType(h)
			if !ok {
				continue
			}
			fields[name] = wireproto.EncodeValue(v)
		}
		doc.Entities = append(doc.Entities, entityDocument{
			ID:     uint64(s.ID),
			Type:   typeName,
			Fields: fields,
		})
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(doc)
}

// Read parses a YAML snapshot from r and applies it to eng via
// RestoreConfiguration. Field values are decoded against the variant each
// field is currently declared with; a field whose stored text does not
// decode under that variant, or whose entity does not exist, is skipped.
func Read(r io.Reader, eng *executor.Engine, writer string) error {
	var doc document
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	in := eng.Interner()
	snaps := make([]executor.EntitySnapshot, 0, len(doc.Entities))
	for _, ed := range doc.Entities {
		typeHandle, ok := in.LookupEntityType(ed.Type)
		if !ok {
			continue
		}
		id := types.EntityId(ed.ID)
		fields := make(map[types.FieldTypeHandle]types.Value, len(ed.Fields))
		for name, wire := range ed.Fields {
			fieldHandle, ok := in.LookupFieldType(name)
			if !ok {
				continue
			}
			variant, err := eng.VariantOf(id, fieldHandle)
			if err != nil {
				continue
			}
			v, err := wireproto.DecodeValue(wire, variant)
			if err != nil {
				continue
			}
			fields[fieldHandle] = v
		}
		snaps = append(snaps, executor.EntitySnapshot{ID: id, Type: typeHandle, Fields: fields})
	}

	return eng.RestoreConfiguration(snaps, writer)
}
