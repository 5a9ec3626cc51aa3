package inspect

import (
	"encoding/json"
	"strings"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// ResolveProperty finds the property a path member refers to. Names match
// case-insensitively.
func ResolveProperty(typ *meta.Type, p *Path) (*meta.Property, bool) {
	if p.Index >= 0 {
		prop := typ.Property(p.Index)
		return prop, prop != nil
	}
	if prop := typ.PropertyByName(p.Member); prop != nil {
		return prop, true
	}
	for _, prop := range typ.Properties() {
		if strings.EqualFold(prop.Name, p.Member) {
			return prop, true
		}
	}
	return nil, false
}

// ResolveMethod returns the method reference for a path member: an index,
// a full signature, or a plain name left to overload resolution.
func ResolveMethod(typ *meta.Type, p *Path) (any, bool) {
	if p.Index >= 0 {
		m := typ.Method(p.Index)
		if m == nil || m.IsSignal() {
			return nil, false
		}
		return float64(p.Index), true
	}
	if strings.Contains(p.Member, "(") {
		return p.Member, typ.MethodBySignature(p.Member) != nil
	}
	for _, m := range typ.MethodsNamed(p.Member) {
		if !m.IsSignal() {
			return p.Member, true
		}
	}
	return nil, false
}

// ParseValue turns command line text into a wire value. JSON literals
// decode as such ("21.5", "true", "[1,2]"); anything else is a string.
func ParseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// ParseValues applies ParseValue to every argument.
func ParseValues(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = ParseValue(a)
	}
	return out
}
