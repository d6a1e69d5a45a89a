package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyPlainSyntaxes(t *testing.T) {
	explicit, bigEndian := Policy(ImplicitVRLittleEndian)
	assert.False(t, explicit)
	assert.False(t, bigEndian)

	explicit, bigEndian = Policy(ExplicitVRLittleEndian)
	assert.True(t, explicit)
	assert.False(t, bigEndian)

	explicit, bigEndian = Policy(ExplicitVRBigEndian)
	assert.True(t, explicit)
	assert.True(t, bigEndian)
}

func TestPolicyUnknownUIDFallsBackToExplicitLE(t *testing.T) {
	explicit, bigEndian := Policy(Syntax("1.2.3.4.5.bogus"))
	assert.True(t, explicit)
	assert.False(t, bigEndian)
}

func TestIsCompressedBoundary(t *testing.T) {
	assert.False(t, IsCompressed(ImplicitVRLittleEndian))
	assert.False(t, IsCompressed(ExplicitVRLittleEndian))
	assert.False(t, IsCompressed(DeflatedExplicitVR))
	assert.False(t, IsCompressed(ExplicitVRBigEndian))
	assert.False(t, IsCompressed(ExplicitVRLittleEndianExt))

	assert.True(t, IsCompressed(JPEGBaseline))
	assert.True(t, IsCompressed(RLELossless))
}

func TestIsCompressedUnknownUID(t *testing.T) {
	assert.True(t, IsCompressed(Syntax("9.9.9.9")), "unrecognized UID assumed compressed")
}

func TestValidAndLookup(t *testing.T) {
	assert.True(t, Valid(JPEG2000Lossless))
	assert.False(t, Valid(Syntax("0.0.0.0")))

	e, ok := Lookup(DeflatedExplicitVR)
	assert.True(t, ok)
	assert.True(t, e.Deflated)
	assert.True(t, e.Explicit)
	assert.False(t, e.BigEndian)
}

func TestSyntaxMethods(t *testing.T) {
	s := ExplicitVRBigEndian
	assert.True(t, s.IsExplicitVR())
	assert.True(t, s.IsBigEndian())
	assert.False(t, s.IsDeflated())
	assert.False(t, s.IsCompressed())
	assert.Equal(t, "Explicit VR Big Endian", s.Name())

	unknown := FromUID("1.2.3")
	assert.Equal(t, "1.2.3", unknown.Name())
}
