package vm

// ---------------------------------------------------------------------------
// Number Primitives
// ---------------------------------------------------------------------------

func (in *Interpreter) registerNumberPrimitives() {
	r := in.Registry

	r.RegisterDoc("+", "(+ n...) sums its operands; (+) is 0", func(in *Interpreter, args *Stack) error {
		ns, err := numbers(args)
		if err != nil {
			return err
		}
		acc := 0.0
		for _, n := range ns {
			acc += n
		}
		return in.replace(args, acc)
	})

	r.RegisterDoc("-", "(- n m...) subtracts the rest from the first operand; (- n) negates", func(in *Interpreter, args *Stack) error {
		ns, err := numbers(args)
		if err != nil {
			return err
		}
		if len(ns) == 0 {
			return Errorf(ErrArity, "expected at least 1 operand")
		}
		if len(ns) == 1 {
			return in.replace(args, -ns[0])
		}
		acc := ns[0]
		for _, n := range ns[1:] {
			acc -= n
		}
		return in.replace(args, acc)
	})

	r.RegisterDoc("*", "(* n...) multiplies its operands; (*) is 1", func(in *Interpreter, args *Stack) error {
		ns, err := numbers(args)
		if err != nil {
			return err
		}
		acc := 1.0
		for _, n := range ns {
			acc *= n
		}
		return in.replace(args, acc)
	})

	r.RegisterDoc("/", "(/ n m...) divides the first operand by the rest; (/ n) is 1/n", func(in *Interpreter, args *Stack) error {
		ns, err := numbers(args)
		if err != nil {
			return err
		}
		if len(ns) == 0 {
			return Errorf(ErrArity, "expected at least 1 operand")
		}
		if len(ns) == 1 {
			return in.replace(args, 1/ns[0])
		}
		acc := ns[0]
		for _, n := range ns[1:] {
			acc /= n
		}
		return in.replace(args, acc)
	})
}

// numbers checks that every operand in the window is a Number.
func numbers(args *Stack) ([]float64, error) {
	items := args.Items()
	ns := make([]float64, len(items))
	for i, v := range items {
		if v == nil || v.Type != TypeNumber {
			return nil, Errorf(ErrTypeMismatch, "operand %d is %s, want number", i+1, describe(v))
		}
		ns[i] = v.Number
	}
	return ns, nil
}

// replace reduces the window to the single Number n.
func (in *Interpreter) replace(args *Stack, n float64) error {
	args.Truncate(0)
	args.Push(in.gc.NewNumber(n))
	return nil
}
