package core

import "time"

// Status says which path a compression took.
type Status string

const (
	StatusCompressed    Status = "compressed"
	StatusDisabled      Status = "disabled"
	StatusNotImage      Status = "not_image"
	StatusUnderTarget   Status = "under_target"
	StatusUnsupported   Status = "unsupported"
	StatusDecodeFailed  Status = "decode_failed"
	StatusEncodeFailed  Status = "encode_failed"
	StatusInternalError Status = "internal_error"
)

// Fallback reports whether the status stands for a recovered failure.
func (s Status) Fallback() bool {
	switch s {
	case StatusUnsupported, StatusDecodeFailed, StatusEncodeFailed, StatusInternalError:
		return true
	}
	return false
}

// Outcome is the result of one compression. File is always usable; Err holds
// the failure that was recovered, if any, for logging only.
type Outcome struct {
	File    File
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Encoded returns the EncodedResult when compression produced one.
func (o Outcome) Encoded() (EncodedResult, bool) {
	e, ok := o.File.(EncodedResult)
	return e, ok
}
