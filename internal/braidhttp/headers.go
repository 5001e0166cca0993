// Package braidhttp implements the wire mechanics of the Braid-HTTP
// convention used by this service (spec.md §6.1, §6.2): the
// structured-headers subset for Version/Parents, and the subscription
// frame format. Grounded on
// other_examples/f7e22548_longregen-alicia__...sse.go for the
// streaming-response header set and flush discipline.
package braidhttp

import (
	"errors"
	"fmt"
	"strings"
)

// Header names used across the Braid surface (spec.md §6.1, §6.2).
const (
	HeaderSubscribe = "Subscribe"
	HeaderVersion   = "Version"
	HeaderParents   = "Parents"
)

// MaxIdentifierLength is the longest a single Version/Parents list
// entry may be (spec.md §4.5 step 4: "reject overly long identifiers
// (> 200 chars)").
const MaxIdentifierLength = 200

// ErrMalformedHeader is returned by ParseQuotedList on input that does
// not match the structured-headers subset this service accepts.
var ErrMalformedHeader = errors.New("braidhttp: malformed structured-headers list")

// ErrIdentifierTooLong is returned when a parsed identifier exceeds
// MaxIdentifierLength.
var ErrIdentifierTooLong = errors.New("braidhttp: identifier too long")

// ErrIdentifierHasControlChars is returned when a parsed identifier
// contains a carriage return or line feed (spec.md §4.5 step 4).
var ErrIdentifierHasControlChars = errors.New("braidhttp: identifier contains CR or LF")

// ParseQuotedList parses a structured-headers subset: a
// comma-separated list of JSON-quoted strings, surrounding whitespace
// ignored (spec.md §6.2). An empty or whitespace-only header value
// yields a nil, non-error result meaning "no hint" (spec.md §4.5 step
// 4: "empty means 'no hint'").
func ParseQuotedList(header string) ([]string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	var out []string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if len(part) < 2 || part[0] != '"' || part[len(part)-1] != '"' {
			return nil, ErrMalformedHeader
		}
		value := part[1 : len(part)-1]
		if err := ValidateIdentifier(value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

// ValidateIdentifier enforces the length and control-character limits
// spec.md §4.5 step 4 places on Version/Parents entries.
func ValidateIdentifier(id string) error {
	if len(id) > MaxIdentifierLength {
		return ErrIdentifierTooLong
	}
	if strings.ContainsAny(id, "\r\n") {
		return ErrIdentifierHasControlChars
	}
	return nil
}

// EncodeQuotedList renders ids back into the structured-headers subset
// used for the Version response header.
func EncodeQuotedList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return strings.Join(quoted, ", ")
}
