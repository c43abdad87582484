// Package interp is an in-process stand-in for the embedded scripting
// interpreter. It keeps reference counted objects, callable functions,
// autograd function classes and runner addresses, and it implements the
// foreign.Bridge and foreign.Invoker contracts.
//
// The host binary uses it to exercise the registry end to end, and tests use
// it as the reference counter that detects leaks, double releases and
// releases after finalization.
package interp
