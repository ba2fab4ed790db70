// Package sonarlink talks to the sonar over its line protocol.
//
// Every request is one line, `<id> VERB path args...`, and is answered by
// exactly one line carrying the same id: `<id> OK payload...` or
// `<id> ERR message`. Arguments and payload fields are space separated;
// strings are Go-quoted. Lines starting with '!' are unsolicited device
// notices.
package sonarlink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/sidescan/internal/sonar"
)

// Verbs.
const (
	VerbGet     = "GET"
	VerbSet     = "SET"
	VerbList    = "LIST"
	VerbEnable  = "ENABLE"
	VerbDisable = "DISABLE"
	VerbMaster  = "MASTER"
	VerbStart   = "START"
	VerbStop    = "STOP"
)

// unavailable is the payload of a LIST whose enumeration the port does not
// expose at all, as opposed to an empty one.
const unavailable = "-"

// Request is one parsed request line.
type Request struct {
	ID   uint64
	Verb string
	Path string
	Args []string
}

// Reply is one parsed reply line.
type Reply struct {
	ID      uint64
	OK      bool
	Fields  []string
	Message string
}

// FormatArg renders one argument in wire form.
func FormatArg(v any) string {
	switch a := v.(type) {
	case string:
		return strconv.Quote(a)
	case float64:
		return strconv.FormatFloat(a, 'g', -1, 64)
	case bool:
		if a {
			return "1"
		}
		return "0"
	case sonar.Source:
		return a.String()
	default:
		return fmt.Sprint(a)
	}
}

// FormatRequest renders a request line without the trailing newline.
func FormatRequest(id uint64, verb, path string, args ...any) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(id, 10))
	b.WriteByte(' ')
	b.WriteString(verb)
	if path != "" {
		b.WriteByte(' ')
		b.WriteString(path)
	}
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(FormatArg(a))
	}
	return b.String()
}

// Tokenize splits a line into fields, unquoting Go-quoted strings.
func Tokenize(s string) ([]string, error) {
	var fields []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return fields, nil
		}
		if s[0] == '"' {
			q, err := strconv.QuotedPrefix(s)
			if err != nil {
				return nil, fmt.Errorf("bad quoted field in %q: %w", s, err)
			}
			v, err := strconv.Unquote(q)
			if err != nil {
				return nil, err
			}
			fields = append(fields, v)
			s = s[len(q):]
			continue
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			end = len(s)
		}
		fields = append(fields, s[:end])
		s = s[end:]
	}
}

// ParseRequest parses a request line.
func ParseRequest(line string) (Request, error) {
	fields, err := Tokenize(line)
	if err != nil {
		return Request{}, err
	}
	if len(fields) < 2 {
		return Request{}, fmt.Errorf("short request %q", line)
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("bad request id %q", fields[0])
	}
	req := Request{ID: id, Verb: fields[1]}
	if len(fields) > 2 {
		req.Path = fields[2]
		req.Args = fields[3:]
	}
	return req, nil
}

// ParseReply parses a reply line. The message of an ERR reply is the raw
// rest of the line.
func ParseReply(line string) (Reply, error) {
	idStr, rest, _ := strings.Cut(line, " ")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return Reply{}, fmt.Errorf("bad reply id in %q", line)
	}
	status, payload, _ := strings.Cut(rest, " ")
	switch status {
	case "OK":
		fields, err := Tokenize(payload)
		if err != nil {
			return Reply{}, err
		}
		return Reply{ID: id, OK: true, Fields: fields}, nil
	case "ERR":
		return Reply{ID: id, Message: payload}, nil
	default:
		return Reply{}, fmt.Errorf("bad reply status in %q", line)
	}
}

// FormatOK renders a success reply.
func FormatOK(id uint64, fields ...any) string {
	return FormatRequest(id, "OK", "", fields...)
}

// FormatErr renders a failure reply.
func FormatErr(id uint64, msg string) string {
	return fmt.Sprintf("%d ERR %s", id, msg)
}

// FormatEnum renders an enumeration as alternating value and quoted name
// fields. A nil slice renders as unavailable.
func FormatEnum(values []sonar.EnumValue) []any {
	if values == nil {
		return []any{unavailable}
	}
	out := make([]any, 0, 2*len(values))
	for _, v := range values {
		out = append(out, v.Value, v.Name)
	}
	return out
}

// ParseEnum is the inverse of FormatEnum.
func ParseEnum(fields []string) ([]sonar.EnumValue, error) {
	if len(fields) == 1 && fields[0] == unavailable {
		return nil, nil
	}
	if len(fields)%2 != 0 {
		return nil, errors.New("enumeration has an odd number of fields")
	}
	values := make([]sonar.EnumValue, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		v, err := strconv.ParseUint(fields[i], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("enumeration value %q: %w", fields[i], err)
		}
		values = append(values, sonar.EnumValue{Value: uint32(v), Name: fields[i+1]})
	}
	return values, nil
}
