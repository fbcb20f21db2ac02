package metrics

import "errors"

var (
	// ErrDuplicateKey is returned when two catalogs define the same key.
	ErrDuplicateKey = errors.New("duplicate metric key")

	// ErrDuplicateID is returned when two catalogs define the same id.
	ErrDuplicateID = errors.New("duplicate metric id")

	// ErrMissingKey is returned for a catalog entry without a key.
	ErrMissingKey = errors.New("metric key is required")

	// ErrMissingLanguage is returned for a catalog without a language.
	ErrMissingLanguage = errors.New("catalog language is required")

	// ErrUnknownLanguage is returned when no catalog exists for a language.
	ErrUnknownLanguage = errors.New("no metric catalog for language")
)
