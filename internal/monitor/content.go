package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentType is the shape of data a site exposes.
type ContentType int

const (
	TypeUnknown ContentType = iota
	TypeSingle
	TypeMultiple
)

func (t ContentType) String() string {
	switch t {
	case TypeSingle:
		return "single"
	case TypeMultiple:
		return "multiple"
	default:
		return "unknown"
	}
}

// ParseContentType accepts "single", "multiple" or an empty string (unknown).
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "auto":
		return TypeUnknown, nil
	case "single":
		return TypeSingle, nil
	case "multiple", "multi":
		return TypeMultiple, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown content type %q", s)
	}
}

// Content is one fetch result: nothing, a single string (List=false) or a list.
type Content struct {
	Values []string
	List   bool
}

// Text returns single-string content.
func Text(v string) Content {
	if strings.TrimSpace(v) == "" {
		return Content{}
	}
	return Content{Values: []string{v}}
}

// List returns list content.
func List(vs ...string) Content {
	return Content{Values: append([]string(nil), vs...), List: true}
}

func (c Content) Empty() bool { return len(c.Values) == 0 }

// resolveType decides the type of a not-yet-typed site from its first data.
func (c Content) resolveType() ContentType {
	if c.List && len(c.Values) > 1 {
		return TypeMultiple
	}
	return TypeSingle
}

// NormalizeValue strips a leading "+" and canonicalizes integer tokens.
// Non-numeric tokens are kept as-is.
func NormalizeValue(raw string) string {
	raw = strings.TrimSpace(raw)
	s := strings.TrimPrefix(raw, "+")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if s == "" {
		return raw
	}
	return s
}

// Prefixed renders a normalized value with its "+" prefix.
func Prefixed(v string) string {
	if v == "" {
		return ""
	}
	return "+" + v
}
