package foreign

import "strconv"

// Object is an opaque reference to an interpreter-owned object.
type Object uintptr

// Nil is the zero Object.
const Nil Object = 0

// String formats the object as a hex address.
func (o Object) String() string {
	return "0x" + strconv.FormatUint(uint64(o), 16)
}

// Address is the raw address of a callable exported by the interpreter's
// dispatch glue.
type Address uintptr

// NilAddress is returned by runner lookups when nothing was registered.
const NilAddress Address = 0

// RefCounter is the pair of reference counting primitives the interpreter
// exposes. Both must only be called while the interpreter is alive.
type RefCounter interface {
	IncRef(obj Object)
	DecRef(obj Object)
}

// Bridge is the full set of interpreter services the registry depends on.
type Bridge interface {
	RefCounter

	// WrapAddress boxes a raw callable address into a new interpreter object.
	// The caller owns the returned reference.
	WrapAddress(addr Address) (Object, error)

	// Attr looks up a named attribute of obj. The caller owns the returned
	// reference.
	Attr(obj Object, name string) (Object, error)
}
