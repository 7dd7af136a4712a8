// cmd/eavdb-schemaload loads CUE ontology definitions and pushes them to a
// running eavdb-server as SCHEMA_UPDATE wire commands — the CUE-driven
// counterpart to the teacher's Ent-schema generator, except it drives a
// live engine over the wire instead of emitting Go source to compile in.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/matthewbaird/eavdb/internal/cueload"
	"github.com/matthewbaird/eavdb/internal/intern"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/matthewbaird/eavdb/internal/wireproto"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6380", "address of the eavdb-server wire endpoint")
	ontologyDir := flag.String("ontology", "./ontology", "directory containing CUE ontology definitions")
	identity := flag.String("auth", "", "user:secret to AUTH with before applying schema, empty skips AUTH")
	flag.Parse()

	in := intern.NewInterner()
	singles, err := cueload.LoadDir(in, *ontologyDir)
	if err != nil {
		log.Fatalf("eavdb-schemaload: loading ontology: %v", err)
	}
	if len(singles) == 0 {
		log.Fatalf("eavdb-schemaload: no entity definitions found in %s", *ontologyDir)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("eavdb-schemaload: dialing %s: %v", *addr, err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	if *identity != "" {
		user, secret, ok := strings.Cut(*identity, ":")
		if !ok {
			log.Fatalf("eavdb-schemaload: -auth must be user:secret")
		}
		if err := send(conn, reader, "AUTH", user, secret); err != nil {
			log.Fatalf("eavdb-schemaload: AUTH: %v", err)
		}
	}

	for _, single := range singles {
		cmd := encodeSchemaUpdate(in, single)
		resp, err := sendRaw(conn, reader, cmd)
		if err != nil {
			typeName, _ := in.ResolveEntityType(single.Type)
			log.Fatalf("eavdb-schemaload: applying %s: %v", typeName, err)
		}
		fmt.Println(resp)
	}

	log.Printf("eavdb-schemaload: applied %d entity type definitions from %s", len(singles), *ontologyDir)
}

// encodeSchemaUpdate renders a schema.SingleSchema as the
// "SCHEMA_UPDATE <type> <parents> <fields>" wire command the dispatcher's
// handleSchemaUpdate expects.
func encodeSchemaUpdate(in *intern.Interner, single schema.SingleSchema) string {
	typeName, _ := in.ResolveEntityType(single.Type)

	parents := "-"
	if len(single.Parents) > 0 {
		names := make([]string, len(single.Parents))
		for i, p := range single.Parents {
			names[i], _ = in.ResolveEntityType(p)
		}
		parents = strings.Join(names, ",")
	}

	fields := "-"
	if len(single.Fields) > 0 {
		entries := make([]string, 0, len(single.Fields))
		for _, fs := range single.Fields {
			entries = append(entries, encodeFieldSchema(fs))
		}
		fields = strings.Join(entries, ";")
	}

	return "SCHEMA_UPDATE " + typeName + " " + parents + " " + fields
}

func encodeFieldSchema(fs schema.FieldSchema) string {
	scope := "runtime"
	if fs.Scope == types.ScopeConfiguration {
		scope = "cfg"
	}
	inverse := "-"
	if fs.InverseOf != "" {
		inverse = fs.InverseOf
	}
	return strings.Join([]string{
		fs.Name,
		variantWireName(fs.Variant),
		wireproto.EncodeValue(fs.Default),
		strconv.Itoa(fs.Rank),
		scope,
		inverse,
	}, ":")
}

func variantWireName(v types.Variant) string {
	switch v {
	case types.VariantBool:
		return "bool"
	case types.VariantInt:
		return "int"
	case types.VariantFloat:
		return "float"
	case types.VariantString:
		return "string"
	case types.VariantBlob:
		return "blob"
	case types.VariantTimestamp:
		return "timestamp"
	case types.VariantChoice:
		return "choice"
	case types.VariantEntityReference:
		return "entity_reference"
	case types.VariantEntityList:
		return "entity_list"
	default:
		return "string"
	}
}

func send(conn net.Conn, reader *bufio.Reader, parts ...string) error {
	_, err := sendRaw(conn, reader, strings.Join(parts, " "))
	return err
}

func sendRaw(conn net.Conn, reader *bufio.Reader, line string) (string, error) {
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		return "", err
	}
	frame, err := wireproto.Decode(reader)
	if err != nil {
		return "", err
	}
	if frame.Type == wireproto.TypeError {
		return "", fmt.Errorf("%s %s", frame.Str, frame.ErrDetail)
	}
	return describeFrame(frame), nil
}

func describeFrame(f wireproto.Frame) string {
	switch f.Type {
	case wireproto.TypeSimpleString:
		return f.Str
	case wireproto.TypeInteger:
		return strconv.FormatInt(f.Int, 10)
	case wireproto.TypeBulkString:
		if f.NilBulk {
			return "(nil)"
		}
		return string(f.Bulk)
	case wireproto.TypeArray:
		items := make([]string, len(f.Array))
		for i, item := range f.Array {
			items[i] = describeFrame(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return ""
	}
}
