// Package inspect provides inspection and manipulation of published objects.
//
// The inspect package offers a unified interface for:
//   - Parsing path expressions (e.g., "thermostat/target")
//   - Resolving member names to property and method indices
//   - Reading and writing properties, invoking methods
//   - Formatting output for display
package inspect

import (
	"errors"
	"strconv"
	"strings"
)

// Path errors.
var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("invalid path format")
)

// Path represents a parsed inspection path.
// Format: object[/member], where member is a name or a numeric index.
type Path struct {
	// Object is the published object id.
	Object string

	// Member is the property or method name. Empty when Index is set.
	Member string

	// Index is the numeric member index, -1 if the member was given by name.
	Index int

	// IsPartial indicates the path names an object without a member.
	IsPartial bool

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses a path string.
//
// Supported formats:
//   - "object" - partial, for inspecting the whole object
//   - "object/member" - a property or method by name
//   - "object/3" - a property or method by index
func ParsePath(input string) (*Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPath
	}
	if strings.HasPrefix(input, "/") || strings.HasSuffix(input, "/") || strings.Count(input, "/") > 1 {
		return nil, ErrInvalidPath
	}

	p := &Path{Raw: input, Index: -1}
	object, member, found := strings.Cut(input, "/")
	p.Object = object
	if !found {
		p.IsPartial = true
		return p, nil
	}

	if n, err := strconv.Atoi(member); err == nil {
		if n < 0 {
			return nil, ErrInvalidPath
		}
		p.Index = n
		return p, nil
	}
	p.Member = member
	return p, nil
}

// String returns the path in canonical form.
func (p *Path) String() string {
	switch {
	case p.IsPartial:
		return p.Object
	case p.Member != "":
		return p.Object + "/" + p.Member
	default:
		return p.Object + "/" + strconv.Itoa(p.Index)
	}
}
