// Package registry keeps the interpreter-side objects the execution engine
// needs while running user-defined autograd functions: the named function
// pools, the forward/backward context index and the two runner addresses.
//
// All state sits behind a single mutex. The lock is only held for table
// mutations and lookups; handles are released and foreign callables invoked
// after it is dropped, so re-entrant calls from inside the interpreter cannot
// deadlock.
//
// Teardown is explicit. The owning process must call UnregisterGlobalFunctions
// and UnregisterModelSpecificFunctions (or Shutdown) while the interpreter is
// still alive. Registry access after teardown is undefined.
//
// Context indices are never reused by a Registry: model teardown drops the
// stored contexts but the counter keeps counting from where it stopped.
package registry
