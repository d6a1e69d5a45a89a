package dicom

import "errors"

// Sentinel errors returned by Reader, Writer, ElementStore and Object.
// Recoverable parse conditions (odd length, unknown VR, hierarchy
// overflow, an unrecognized transfer syntax) are not returned as
// errors at all — they are appended to Object.Warnings, since a
// caller generally wants the rest of the file even when one element
// is malformed.
var (
	ErrTooShort             = errors.New("dicom: buffer too short for preamble/magic")
	ErrNotFound             = errors.New("dicom: no element matches the query")
	ErrPermissionDenied     = errors.New("dicom: permission denied")
	ErrIsDirectory          = errors.New("dicom: path is a directory")
	ErrTruncatedLastElement = errors.New("dicom: stream ended mid-element")
	ErrAmbiguousQuery       = errors.New("dicom: query matches more than one element")
	ErrInvalidTag           = errors.New("dicom: malformed tag string")
	ErrEncodeFailure        = errors.New("dicom: failed to encode value for VR")
)
