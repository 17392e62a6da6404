package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/owl/vm"
)

// cborEncMode uses canonical mode so equal code always encodes to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct {
	image Image
	index map[*vm.Object]int
}

// ref returns the 1-based table index of o, adding it and everything it
// references on first sight. Shared and cyclic structure is stored once.
func (e *encoder) ref(o *vm.Object) int {
	if o == nil {
		return 0
	}
	if i, ok := e.index[o]; ok {
		return i
	}
	e.image.Values = append(e.image.Values, ValueRecord{Type: uint8(o.Type)})
	i := len(e.image.Values)
	e.index[o] = i

	rec := ValueRecord{Type: uint8(o.Type)}
	switch o.Type {
	case vm.TypeNumber:
		rec.Number = o.Number
	case vm.TypeBoolean:
		rec.Boolean = o.Boolean
	case vm.TypeSymbol, vm.TypeString:
		rec.Text = o.Text
	case vm.TypeList:
		for v := range vm.Each(o) {
			rec.Refs = append(rec.Refs, e.ref(v))
		}
	case vm.TypeArray:
		for _, v := range o.Items {
			rec.Refs = append(rec.Refs, e.ref(v))
		}
	case vm.TypeDict:
		if vm.DictLen(o) > 0 {
			for cell := o; cell != nil; cell = cell.Next {
				rec.Refs = append(rec.Refs, e.ref(cell.Key), e.ref(cell.Value))
			}
		}
	}
	e.image.Values[i-1] = rec
	return i
}

// MarshalCode serializes code and every value it pushes to CBOR bytes.
func MarshalCode(code *vm.Code) ([]byte, error) {
	e := &encoder{
		image: Image{Version: ImageVersion},
		index: make(map[*vm.Object]int),
	}
	for pc, in := range code.Instructions() {
		rec := InstrRecord{Op: uint8(in.Op)}
		switch in.Op {
		case vm.OpPush:
			rec.Value = e.ref(in.Value)
		case vm.OpSyscall:
			if in.Name == "" {
				return nil, fmt.Errorf("dist: instruction %d calls an unnamed intrinsic", pc)
			}
			rec.Name = in.Name
			rec.Argc = in.Argc
		}
		e.image.Code = append(e.image.Code, rec)
	}
	return cborEncMode.Marshal(&e.image)
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// UnmarshalCode rebuilds code from CBOR bytes. Values are allocated through
// gc and each pushed value is registered as a root; intrinsics are resolved
// by name through reg.
func UnmarshalCode(data []byte, gc *vm.Collector, reg *vm.Registry) (code *vm.Code, err error) {
	var image Image
	if err := cbor.Unmarshal(data, &image); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadImage, err)
	}
	if image.Version != ImageVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadImage, image.Version, ImageVersion)
	}

	defer vm.CatchFatal(&err)

	objs, err := decodeValues(gc, image.Values)
	if err != nil {
		return nil, err
	}

	out := vm.NewCode(gc.Allocator())
	for pc, rec := range image.Code {
		switch op := vm.Opcode(rec.Op); op {
		case vm.OpNOP:
			out.EmitNOP()
		case vm.OpJump:
			out.EmitJump()
		case vm.OpPush:
			if rec.Value < 1 || rec.Value > len(objs) {
				out.Release()
				return nil, fmt.Errorf("%w: instruction %d pushes value %d of %d", ErrBadImage, pc, rec.Value, len(objs))
			}
			v := objs[rec.Value-1]
			gc.AddRoot(v)
			out.EmitPush(v)
		case vm.OpSyscall:
			fn, ok := reg.Lookup(rec.Name)
			if !ok {
				out.Release()
				return nil, fmt.Errorf("%w: unknown intrinsic %q", ErrBadImage, rec.Name)
			}
			if rec.Argc < 0 {
				out.Release()
				return nil, fmt.Errorf("%w: instruction %d has argc %d", ErrBadImage, pc, rec.Argc)
			}
			out.EmitSyscall(fn, rec.Name, rec.Argc)
		default:
			out.Release()
			return nil, fmt.Errorf("%w: instruction %d has opcode %s", ErrBadImage, pc, op)
		}
	}
	return out, nil
}

// decodeValues allocates every object first and links them second, so
// references may point forwards or back to themselves.
func decodeValues(gc *vm.Collector, recs []ValueRecord) ([]*vm.Object, error) {
	objs := make([]*vm.Object, len(recs))
	for i, rec := range recs {
		switch t := vm.Type(rec.Type); t {
		case vm.TypeNothing:
			objs[i] = gc.Nothing()
		case vm.TypeNumber:
			objs[i] = gc.NewNumber(rec.Number)
		case vm.TypeBoolean:
			objs[i] = gc.NewBoolean(rec.Boolean)
		case vm.TypeSymbol:
			objs[i] = gc.NewSymbol(rec.Text)
		case vm.TypeString:
			objs[i] = gc.NewString(rec.Text)
		case vm.TypeList:
			objs[i] = gc.NewList()
		case vm.TypeArray:
			objs[i] = gc.NewArray(len(rec.Refs))
		case vm.TypeDict:
			if len(rec.Refs)%2 != 0 {
				return nil, fmt.Errorf("%w: dict %d has %d refs", ErrBadImage, i+1, len(rec.Refs))
			}
			objs[i] = gc.NewDict()
		default:
			return nil, fmt.Errorf("%w: value %d has type %d", ErrBadImage, i+1, rec.Type)
		}
	}

	resolve := func(ref int) (*vm.Object, error) {
		if ref < 0 || ref > len(objs) {
			return nil, fmt.Errorf("%w: reference %d of %d", ErrBadImage, ref, len(objs))
		}
		if ref == 0 {
			return nil, nil
		}
		return objs[ref-1], nil
	}

	for i, rec := range recs {
		o := objs[i]
		refs := make([]*vm.Object, len(rec.Refs))
		for j, ref := range rec.Refs {
			v, err := resolve(ref)
			if err != nil {
				return nil, err
			}
			refs[j] = v
		}
		switch o.Type {
		case vm.TypeList:
			for _, v := range refs {
				if v == nil {
					return nil, fmt.Errorf("%w: list %d has a nil element", ErrBadImage, i+1)
				}
				gc.Append(o, v)
			}
		case vm.TypeArray:
			copy(o.Items, refs)
		case vm.TypeDict:
			cell := o
			for j := 0; j < len(refs); j += 2 {
				if j > 0 {
					next := gc.NewDict()
					cell.Next = next
					cell = next
				}
				cell.Key, cell.Value = refs[j], refs[j+1]
			}
		}
	}
	return objs, nil
}
