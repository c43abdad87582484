package registry

import "errors"

// ErrKeyNotFound is returned by required lookups when the key or context
// index is absent.
var ErrKeyNotFound = errors.New("key not found")

// ErrIndexExhausted is the panic value raised when the context counter cannot
// advance without reusing an index.
var ErrIndexExhausted = errors.New("context index exhausted")

// ErrNilRunner is returned when a runner registration carries no address.
var ErrNilRunner = errors.New("runner address is nil")

// ErrInvalidPool is returned when a pool value is outside Pools().
var ErrInvalidPool = errors.New("invalid pool")

// ErrNilHandle is returned when Register is given no handle.
var ErrNilHandle = errors.New("nil handle")
