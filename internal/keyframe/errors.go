package keyframe

import "fmt"

// DecodeError reports a frame that could not be decoded. Detection stops at
// the first such frame because skipping it would compare non-adjacent frames.
type DecodeError struct {
	Index int
	Path  string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decode frame %d (%s): %v", e.Index, e.Path, e.Err)
	}
	return fmt.Sprintf("decode frame %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
