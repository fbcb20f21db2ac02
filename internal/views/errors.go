package views

import "errors"

var (
	// ErrAlreadyFinished is returned by a second Finish call.
	ErrAlreadyFinished = errors.New("accumulator already finished")

	// ErrMissingAttribute is returned when a node lacks the attribute its
	// resource needs (name or path). It fails the view.
	ErrMissingAttribute = errors.New("missing required attribute")

	// ErrViewDisabled is returned when creating the clone accumulator in
	// incremental mode.
	ErrViewDisabled = errors.New("view disabled in incremental mode")

	// ErrNoFileSystem is returned when a view that reconciles paths has no
	// file system.
	ErrNoFileSystem = errors.New("file system collaborator is required")

	// ErrUnknownView is returned for a view name without an accumulator.
	ErrUnknownView = errors.New("unknown view")
)
