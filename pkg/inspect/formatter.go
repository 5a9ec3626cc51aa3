package inspect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowIDs includes member indices alongside names
	ShowIDs bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{IndentWidth: 2}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatValue formats a native or wire value for display.
func (f *Formatter) FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case []byte:
		return fmt.Sprintf("0x%x", v)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = f.FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *meta.Future:
		if !v.Done() {
			return "<pending>"
		}
		if err := v.Err(); err != nil {
			return "<failed: " + err.Error() + ">"
		}
		result, ok := v.Result()
		if !ok {
			return "<cancelled>"
		}
		return f.FormatValue(result)
	case meta.Object:
		if name := v.ObjectName(); name != "" {
			return fmt.Sprintf("<object %q>", name)
		}
		return "<object>"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (f *Formatter) label(index int, name string) string {
	if f.ShowIDs {
		return fmt.Sprintf("[%d] %s", index, name)
	}
	return name
}

// FormatObject renders an object description.
func (f *Formatter) FormatObject(info *ObjectInfo) string {
	var sb strings.Builder

	header := fmt.Sprintf("%s (%s)", info.ID, info.Type)
	if info.Wrapped {
		header += " wrapped"
	}
	sb.WriteString(header + "\n")

	if len(info.Properties) > 0 {
		sb.WriteString(f.Indent(1, "properties:\n"))
		for _, p := range info.Properties {
			var flags []string
			flags = append(flags, p.Type)
			switch {
			case p.Constant:
				flags = append(flags, "constant")
			case !p.Writable:
				flags = append(flags, "read-only")
			}
			if p.Notify != "" {
				flags = append(flags, "notify "+p.Notify)
			}
			line := fmt.Sprintf("%s = %s [%s]\n", f.label(p.Index, p.Name), f.FormatValue(p.Value), strings.Join(flags, ", "))
			sb.WriteString(f.Indent(2, line))
		}
	}

	if len(info.Methods) > 0 {
		sb.WriteString(f.Indent(1, "methods:\n"))
		for _, m := range info.Methods {
			line := f.label(m.Index, m.Signature)
			if m.Return != "" {
				line += " -> " + m.Return
			}
			sb.WriteString(f.Indent(2, line+"\n"))
		}
	}

	if len(info.Signals) > 0 {
		sb.WriteString(f.Indent(1, "signals:\n"))
		for _, s := range info.Signals {
			sb.WriteString(f.Indent(2, f.label(s.Index, s.Signature)+"\n"))
		}
	}

	if len(info.Enums) > 0 {
		sb.WriteString(f.Indent(1, "enums:\n"))
		for _, e := range info.Enums {
			members := make([]string, len(e.Members))
			for i, m := range e.Members {
				members[i] = fmt.Sprintf("%s=%d", m.Name, m.Value)
			}
			sb.WriteString(f.Indent(2, e.Name+": "+strings.Join(members, ", ")+"\n"))
		}
	}

	return sb.String()
}
