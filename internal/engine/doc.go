// Package engine drives autograd functions through the registry. It loads a
// model's functions into the registry, runs forward and backward nodes via
// the registered runners, journals every load and teardown to the store, and
// fans lifecycle events out to subscribers.
package engine
