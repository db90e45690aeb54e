package domain

import "errors"

// Pipeline error kinds. Callers wrap the underlying cause with one of these
// and match with errors.Is.
var (
	// ErrUnsupportedFormat indicates an input file that is neither .csv nor .txt.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyInput indicates an input that produced no records.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrIndexWrite indicates the vector backend rejected an add.
	ErrIndexWrite = errors.New("index write failed")

	// ErrIndexSearch indicates the vector backend failed a search.
	ErrIndexSearch = errors.New("index search failed")

	// ErrGeneration indicates the LLM call failed.
	ErrGeneration = errors.New("generation failed")

	// ErrPersistence indicates a relational write failed.
	ErrPersistence = errors.New("persistence failed")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("empty question")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)
