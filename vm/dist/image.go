// Package dist stores compiled owl bytecode outside the process. Code is
// encoded as a self-contained CBOR image whose pushed values form a flat
// table, and images are cached in SQLite keyed by the hash of their source.
package dist

import "errors"

// ImageVersion is bumped whenever the image layout changes. Cached images of
// another version are ignored.
const ImageVersion = 1

// ErrBadImage is wrapped by every decoding failure.
var ErrBadImage = errors.New("dist: malformed image")

// Image is the wire form of a vm.Code.
type Image struct {
	Version uint8         `cbor:"1,keyasint"`
	Values  []ValueRecord `cbor:"2,keyasint,omitempty"`
	Code    []InstrRecord `cbor:"3,keyasint,omitempty"`
}

// InstrRecord is one instruction. Value is a 1-based index into the value
// table for OpPush; Name and Argc describe an OpSyscall.
type InstrRecord struct {
	Op    uint8  `cbor:"1,keyasint"`
	Value int    `cbor:"2,keyasint,omitempty"`
	Name  string `cbor:"3,keyasint,omitempty"`
	Argc  int    `cbor:"4,keyasint,omitempty"`
}

// ValueRecord is one object. Refs are 1-based indexes into the value table,
// 0 for nil: list elements in order, array slots, or the key and value of
// each dict association in turn.
type ValueRecord struct {
	Type    uint8   `cbor:"1,keyasint"`
	Number  float64 `cbor:"2,keyasint,omitempty"`
	Boolean bool    `cbor:"3,keyasint,omitempty"`
	Text    string  `cbor:"4,keyasint,omitempty"`
	Refs    []int   `cbor:"5,keyasint,omitempty"`
}
