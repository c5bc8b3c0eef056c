package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds reported by a narration run. Adapter errors stay reachable
// through wrapping.
var (
	// ErrUsage is returned for invalid run input such as a missing path.
	ErrUsage = errors.New("pipeline: invalid input")
	// ErrExtraction is returned when the source document cannot be read or has no text.
	ErrExtraction = errors.New("pipeline: extraction failed")
	// ErrSynthesis is returned when the speech service rejects or fails a chunk.
	ErrSynthesis = errors.New("pipeline: synthesis failed")
	// ErrAssembly is returned when audio cannot be decoded, concatenated or exported.
	ErrAssembly = errors.New("pipeline: audio assembly failed")
)

// SynthesisError attributes a synthesis failure to one chunk.
type SynthesisError struct {
	// Index is the zero-based chunk index.
	Index int
	// Total is the number of chunks in the run.
	Total int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed on chunk %d/%d: %v", e.Index+1, e.Total, e.Err)
}

// Unwrap exposes both ErrSynthesis and the adapter error to errors.Is and errors.As.
func (e *SynthesisError) Unwrap() []error {
	return []error{ErrSynthesis, e.Err}
}
