package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// String renders o in its human-readable form:
//
//	Nothing  ()
//	Number   shortest round-trip decimal
//	Boolean  #t / #f
//	Symbol   raw text
//	String   "text"
//	List     (a b c)
//	Array    [a b c], nil slots as ()
//	Dict     {k = v, k2 = v2}
func (o *Object) String() string {
	var sb strings.Builder
	render(&sb, o, nil)
	return sb.String()
}

// FormatNumber renders a number the way the printer does.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// render writes o to sb. path holds the composites currently being rendered;
// a composite that contains itself renders as "...".
func render(sb *strings.Builder, o *Object, path []*Object) {
	if o == nil {
		sb.WriteString("()")
		return
	}
	switch o.Type {
	case TypeNothing:
		sb.WriteString("()")
		return
	case TypeNumber:
		sb.WriteString(FormatNumber(o.Number))
		return
	case TypeBoolean:
		if o.Boolean {
			sb.WriteString("#t")
		} else {
			sb.WriteString("#f")
		}
		return
	case TypeSymbol:
		sb.WriteString(o.Text)
		return
	case TypeString:
		sb.WriteByte('"')
		sb.WriteString(o.Text)
		sb.WriteByte('"')
		return
	}

	for _, p := range path {
		if p == o {
			sb.WriteString("...")
			return
		}
	}
	path = append(path, o)

	switch o.Type {
	case TypeList:
		sb.WriteByte('(')
		first := true
		for v := range Each(o) {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			render(sb, v, path)
		}
		sb.WriteByte(')')
	case TypeArray:
		sb.WriteByte('[')
		for i, v := range o.Items {
			if i > 0 {
				sb.WriteByte(' ')
			}
			render(sb, v, path)
		}
		sb.WriteByte(']')
	case TypeDict:
		sb.WriteByte('{')
		if !dictEmpty(o) {
			for cell := o; cell != nil; cell = cell.Next {
				if cell != o {
					sb.WriteString(", ")
				}
				render(sb, cell.Key, path)
				sb.WriteString(" = ")
				render(sb, cell.Value, path)
			}
		}
		sb.WriteByte('}')
	default:
		sb.WriteString("#<")
		sb.WriteString(o.Type.String())
		sb.WriteByte('>')
	}
}
