package render

import (
	"github.com/sofmeright/imagebuild/src/value"
)

// contextOf converts ctx into the plain Go data gonja evaluates. A fresh
// copy is built on every call, so statements like set never reach ctx.
func contextOf(ctx *value.Map) map[string]any {
	out := make(map[string]any, ctx.Len())
	for _, k := range ctx.Keys() {
		v, _ := ctx.Get(k)
		out[k] = native(v)
	}
	return out
}

func native(v value.Value) any {
	switch t := v.(type) {
	case value.String:
		return string(t)
	case value.Bool:
		return bool(t)
	case value.Number:
		return nativeNumber(t)
	case value.List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = native(item)
		}
		return out
	case *value.Map:
		return contextOf(t)
	default:
		return nil
	}
}

// nativeNumber keeps a configured spelling that gonja would print
// differently ("3.10", "1e3") as a string. Other numbers stay numeric.
func nativeNumber(n value.Number) any {
	canonical := value.Number{Float: n.Float}
	if n.Text != "" && n.Text != canonical.String() {
		return n.Text
	}
	if n.IsInt() && n.Float > -1e15 && n.Float < 1e15 {
		return int(n.Float)
	}
	return n.Float
}
