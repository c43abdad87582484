package engine

import "errors"

var (
	// ErrMissingRunner is returned when a node runs before its forward or
	// backward runner has been registered.
	ErrMissingRunner = errors.New("runner not registered")

	// ErrNoContext is returned by Backward for a forward result that carries
	// no autograd context.
	ErrNoContext = errors.New("forward result has no autograd context")

	// ErrModelLoaded is returned by LoadModel while another model is loaded.
	ErrModelLoaded = errors.New("a model is already loaded")

	// ErrNoModel is returned by UnloadModel when no model is loaded.
	ErrNoModel = errors.New("no model loaded")

	// ErrMalformedOutput is returned when a forward runner does not return
	// the leading context slot.
	ErrMalformedOutput = errors.New("runner output missing context slot")
)
