package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// I/O and Collection Primitives
// ---------------------------------------------------------------------------

func (in *Interpreter) registerIOPrimitives() {
	in.Registry.RegisterDoc("echo", "(echo v...) prints its operands, strings unquoted, and returns the last", func(in *Interpreter, args *Stack) error {
		items := args.Items()
		parts := make([]string, len(items))
		for i, v := range items {
			switch v.Type {
			case TypeString, TypeSymbol:
				parts[i] = v.Text
			default:
				parts[i] = v.String()
			}
		}
		if _, err := fmt.Fprintln(in.Out, strings.Join(parts, " ")); err != nil {
			return err
		}

		result := in.gc.Nothing()
		if top, ok := args.Top(); ok {
			result = top
		}
		args.Truncate(0)
		args.Push(result)
		return nil
	})
}

func (in *Interpreter) registerCollectionPrimitives() {
	r := in.Registry

	r.RegisterDoc("list", "(list v...) collects its operands into a list", func(in *Interpreter, args *Stack) error {
		list := in.gc.NewListOf(args.Items()...)
		args.Truncate(0)
		args.Push(list)
		return nil
	})

	r.RegisterDoc("array", "(array v...) collects its operands into an array", func(in *Interpreter, args *Stack) error {
		items := args.Items()
		array := in.gc.NewArray(len(items))
		copy(array.Items, items)
		args.Truncate(0)
		args.Push(array)
		return nil
	})
}
