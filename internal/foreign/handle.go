package foreign

import "sync/atomic"

// Ownership tags a handle with who controls the referenced object's lifetime.
type Ownership int

const (
	// OwnershipBorrowed means another owner controls the lifetime.
	OwnershipBorrowed Ownership = iota
	// OwnershipOwned means the holder must release one reference.
	OwnershipOwned
)

func (o Ownership) String() string {
	switch o {
	case OwnershipOwned:
		return "owned"
	case OwnershipBorrowed:
		return "borrowed"
	default:
		return "unknown"
	}
}

// Handle is a reference to an interpreter object. The ownership of a handle
// is fixed by its concrete type.
type Handle interface {
	Object() Object
	Ownership() Ownership
}

var (
	_ Handle = (*Owned)(nil)
	_ Handle = Borrowed{}
)

// Owned holds one reference to an interpreter object and releases it at most
// once.
type Owned struct {
	obj      Object
	rc       RefCounter
	released atomic.Bool
}

// Acquire takes a new reference to obj.
func Acquire(rc RefCounter, obj Object) *Owned {
	if obj != Nil {
		rc.IncRef(obj)
	}
	return &Owned{obj: obj, rc: rc}
}

// Steal wraps a reference the caller already owns, such as the result of
// Bridge.Attr or Bridge.WrapAddress, without incrementing it.
func Steal(rc RefCounter, obj Object) *Owned {
	return &Owned{obj: obj, rc: rc}
}

// Object returns the referenced object. The result is a borrowed view.
func (o *Owned) Object() Object { return o.obj }

// Ownership always reports OwnershipOwned.
func (o *Owned) Ownership() Ownership { return OwnershipOwned }

// Released reports whether Release has already run.
func (o *Owned) Released() bool { return o.released.Load() }

// Release gives the reference back to the interpreter. Only the first call
// decrements; later calls return false.
func (o *Owned) Release() bool {
	if !o.released.CompareAndSwap(false, true) {
		return false
	}
	if o.obj != Nil {
		o.rc.DecRef(o.obj)
	}
	return true
}

// Borrowed references an object whose lifetime is controlled elsewhere.
type Borrowed struct {
	obj Object
}

// Borrow tags obj as borrowed.
func Borrow(obj Object) Borrowed {
	return Borrowed{obj: obj}
}

// Object returns the referenced object.
func (b Borrowed) Object() Object { return b.obj }

// Ownership always reports OwnershipBorrowed.
func (b Borrowed) Ownership() Ownership { return OwnershipBorrowed }

// Release releases h if it is owned and reports whether a reference was
// given back. Borrowed handles are left untouched.
func Release(h Handle) bool {
	if o, ok := h.(*Owned); ok && o != nil {
		return o.Release()
	}
	return false
}
