// Package wireproto implements the Redis-style framed wire protocol from
// spec.md §4.9: simple strings, bulk strings, integers, arrays, error
// strings, and permissive inline-command parsing. It also defines the
// verb-to-operation mapping and the per-connection command loop.
package wireproto

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/matthewbaird/eavdb/internal/types"
)

// FrameType tags which RESP alternative a Frame carries.
type FrameType byte

const (
	TypeSimpleString FrameType = '+'
	TypeError        FrameType = '-'
	TypeInteger      FrameType = ':'
	TypeBulkString   FrameType = '$'
	TypeArray        FrameType = '*'
)

// Frame is one RESP value. Only the fields relevant to Type are populated.
type Frame struct {
	Type FrameType

	Str       string // simple string payload, or error tag
	ErrDetail string // human message, error frames only

	Int int64

	Bulk    []byte
	NilBulk bool

	Array []Frame
}

func SimpleString(s string) Frame { return Frame{Type: TypeSimpleString, Str: s} }
func Integer(n int64) Frame       { return Frame{Type: TypeInteger, Int: n} }
func BulkString(b []byte) Frame   { return Frame{Type: TypeBulkString, Bulk: b} }
func BulkText(s string) Frame     { return Frame{Type: TypeBulkString, Bulk: []byte(s)} }
func NilBulkFrame() Frame         { return Frame{Type: TypeBulkString, NilBulk: true} }
func ArrayFrame(items ...Frame) Frame { return Frame{Type: TypeArray, Array: items} }

// ErrorFrame builds an error frame with a spec.md §6 tag (WRONGTYPE, NOENT,
// BADIND, SCHEMA, ARGS, AUTH, OVERFLOW) followed by a human message.
func ErrorFrame(tag, detail string) Frame {
	return Frame{Type: TypeError, Str: tag, ErrDetail: detail}
}

// FromEngineError converts an *types.Error into its wire error frame using
// the kind's canonical tag.
func FromEngineError(err error) Frame {
	if e, ok := err.(*types.Error); ok {
		return ErrorFrame(e.Tag(), e.Message)
	}
	return ErrorFrame("ARGS", err.Error())
}

// Encode writes f in RESP wire format.
func Encode(w io.Writer, f Frame) error {
	bw := bufio.NewWriter(w)
	if err := encode(bw, f); err != nil {
		return err
	}
	return bw.Flush()
}

func encode(w *bufio.Writer, f Frame) error {
	switch f.Type {
	case TypeSimpleString:
		_, err := fmt.Fprintf(w, "+%s\r\n", sanitizeSimple(f.Str))
		return err
	case TypeError:
		_, err := fmt.Fprintf(w, "-%s %s\r\n", f.Str, sanitizeSimple(f.ErrDetail))
		return err
	case TypeInteger:
		_, err := fmt.Fprintf(w, ":%d\r\n", f.Int)
		return err
	case TypeBulkString:
		if f.NilBulk {
			_, err := w.WriteString("$-1\r\n")
			return err
		}
		if _, err := fmt.Fprintf(w, "$%d\r\n", len(f.Bulk)); err != nil {
			return err
		}
		if _, err := w.Write(f.Bulk); err != nil {
			return err
		}
		_, err := w.WriteString("\r\n")
		return err
	case TypeArray:
		if f.Array == nil {
			_, err := w.WriteString("*-1\r\n")
			return err
		}
		if _, err := fmt.Fprintf(w, "*%d\r\n", len(f.Array)); err != nil {
			return err
		}
		for _, item := range f.Array {
			if err := encode(w, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("wireproto: unknown frame type %q", byte(f.Type))
	}
}

func sanitizeSimple(s string) string {
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	}
	return s
}

// Decode reads one frame from r. A line that does not begin with a RESP
// type prefix is parsed as an inline command: a space-separated command
// line terminated by CRLF or LF, returned as an Array of bulk strings
// (spec.md §4.9, "inline-command parsing... to preserve CLI usability").
func Decode(r *bufio.Reader) (Frame, error) {
	prefix, err := r.Peek(1)
	if err != nil {
		return Frame{}, err
	}
	switch FrameType(prefix[0]) {
	case TypeArray:
		return decodeArray(r)
	case TypeBulkString:
		return decodeBulk(r)
	case TypeSimpleString:
		line, err := readLine(r)
		if err != nil {
			return Frame{}, err
		}
		return SimpleString(strings.TrimPrefix(line, "+")), nil
	case TypeInteger:
		line, err := readLine(r)
		if err != nil {
			return Frame{}, err
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(line, ":"), 10, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("wireproto: bad integer frame: %w", err)
		}
		return Integer(n), nil
	case TypeError:
		line, err := readLine(r)
		if err != nil {
			return Frame{}, err
		}
		tag, detail, _ := strings.Cut(strings.TrimPrefix(line, "-"), " ")
		return ErrorFrame(tag, detail), nil
	default:
		return decodeInline(r)
	}
}

func decodeArray(r *bufio.Reader) (Frame, error) {
	line, err := readLine(r)
	if err != nil {
		return Frame{}, err
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, "*"))
	if err != nil {
		return Frame{}, fmt.Errorf("wireproto: bad array header %q: %w", line, err)
	}
	if n < 0 {
		return Frame{Type: TypeArray, Array: nil}, nil
	}
	items := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		item, err := Decode(r)
		if err != nil {
			return Frame{}, err
		}
		items = append(items, item)
	}
	return ArrayFrame(items...), nil
}

func decodeBulk(r *bufio.Reader) (Frame, error) {
	line, err := readLine(r)
	if err != nil {
		return Frame{}, err
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, "$"))
	if err != nil {
		return Frame{}, fmt.Errorf("wireproto: bad bulk header %q: %w", line, err)
	}
	if n < 0 {
		return NilBulkFrame(), nil
	}
	buf := make([]byte, n+2) // payload + trailing CRLF
	if _, err := io.ReadFull(r, buf); err != nil {
		return Frame{}, err
	}
	return BulkString(buf[:n]), nil
}

// decodeInline parses a permissively space-separated command line into an
// array of bulk strings.
func decodeInline(r *bufio.Reader) (Frame, error) {
	line, err := readLine(r)
	if err != nil {
		return Frame{}, err
	}
	fields := strings.Fields(line)
	items := make([]Frame, len(fields))
	for i, f := range fields {
		items[i] = BulkText(f)
	}
	return ArrayFrame(items...), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Args converts an Array frame's bulk-string elements into plain strings,
// used by the dispatcher once a full command frame is parsed.
func Args(f Frame) ([]string, error) {
	if f.Type != TypeArray {
		return nil, fmt.Errorf("wireproto: expected array command frame, got %q", byte(f.Type))
	}
	out := make([]string, len(f.Array))
	for i, item := range f.Array {
		if item.Type != TypeBulkString || item.NilBulk {
			return nil, fmt.Errorf("wireproto: command argument %d is not a bulk string", i)
		}
		out[i] = string(item.Bulk)
	}
	return out, nil
}
