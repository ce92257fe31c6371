package descriptor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedImage is returned by extractors for corrupt or non-image input.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrNotFound is returned when a store lookup misses.
	ErrNotFound = errors.New("descriptor not found")
)

// UnsupportedImageError reports a candidate the extractor could not process
type UnsupportedImageError struct {
	ID    string
	Index int
	Err   error
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("candidate %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *UnsupportedImageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrUnsupportedImage) match regardless of the cause.
func (e *UnsupportedImageError) Is(target error) bool {
	return target == ErrUnsupportedImage
}

// InvalidDescriptorError reports a descriptor whose dimensionality does not
// match the rest of its batch
type InvalidDescriptorError struct {
	ID   string
	Want int
	Got  int
}

func (e *InvalidDescriptorError) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("descriptor %s: empty vector", e.ID)
	}
	return fmt.Sprintf("descriptor %s: dimension %d, batch dimension is %d", e.ID, e.Got, e.Want)
}
