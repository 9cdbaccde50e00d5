package media

import "fmt"

// ProbeError means the input could not be read or carries no usable video.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a failed thumbnail, sprite or transcode run.
type EncodeError struct {
	Op     string
	Output string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Output, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
