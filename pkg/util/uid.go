// Package util holds small generation helpers shared by the library
// and CLI that don't belong in pkg/dicom itself.
package util

import (
	"math/big"

	"github.com/google/uuid"
)

// uuidRoot is the DICOM UID root reserved for UUID-derived UIDs
// (PS3.5 Annex B): "2.25." followed by the UUID's 128 bits read as a
// decimal integer.
const uuidRoot = "2.25."

// NewUID generates a fresh DICOM UID derived from a random UUID,
// suitable as a SOPInstanceUID or SeriesInstanceUID default when a
// caller constructs a dataset programmatically instead of reading one
// from a file.
func NewUID() string {
	return UIDFromUUID(uuid.New())
}

// UIDFromUUID renders u as a DICOM UID under the 2.25 root.
func UIDFromUUID(u uuid.UUID) string {
	n := new(big.Int).SetBytes(u[:])
	return uuidRoot + n.String()
}
