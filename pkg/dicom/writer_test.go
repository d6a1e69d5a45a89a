package dicom

import (
	"bytes"
	"encoding/binary"
	"strings"

	"testing"

	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/transfer"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildNestedStore constructs a store with one undefined-length
// sequence containing one undefined-length item containing a single
// leaf element, exercising the writer's container-stack delimiter
// emission end to end with a reader round-trip.
func buildNestedStore(t *testing.T) *ElementStore {
	t.Helper()
	policy := Policy{ExplicitVR: true}
	s := NewElementStore(policy)

	s.Append(&Element{Tag: tag.New(0x0008, 0x1140), VR: vr.SQ, Length: 0xFFFFFFFF}, 0)
	s.Append(&Element{Tag: tag.Item, VR: vr.Item, Length: 0xFFFFFFFF}, 1)

	leafRaw := []byte("1.2.3.4\x00")
	s.Append(&Element{Tag: tag.New(0x0008, 0x1150), VR: vr.UI, Value: "1.2.3.4", Raw: leafRaw, Length: uint32(len(leafRaw))}, 2)

	return s
}

func TestEncodeElementsEmitsDelimitersForUndefinedLength(t *testing.T) {
	s := buildNestedStore(t)
	policy := Policy{ExplicitVR: true}

	encoded, err := encodeElements(s, []int{0}, policy)
	require.NoError(t, err)

	assert.True(t, bytes.Contains(encoded, []byte{0xFE, 0xFF, 0x0D, 0xE0}), "item delimiter tag must be present")
	assert.True(t, bytes.Contains(encoded, []byte{0xFE, 0xFF, 0xDD, 0xE0}), "sequence delimiter tag must be present")
}

func TestEncodeElementsRoundTripsThroughReader(t *testing.T) {
	s := buildNestedStore(t)
	policy := Policy{ExplicitVR: true}

	encoded, err := encodeElements(s, []int{0}, policy)
	require.NoError(t, err)

	// Wrap the encoded body in a minimal Part-10 frame and re-parse it
	// to confirm the hierarchy survives the round trip.
	obj, err := FromBytes(buildFixtureAround(t, encoded))
	require.NoError(t, err)

	idx, err := obj.Store.find(QueryTag(tag.New(0x0008, 0x1150)), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, idx, 1)

	parents := obj.Store.Parents(idx[0])
	require.Len(t, parents, 2)
	assert.Equal(t, vr.SQ, obj.Store.At(parents[0]).VR)
	assert.True(t, obj.Store.At(parents[1]).Tag.IsItemFamily())
}

// buildFixtureAround wraps a pre-encoded Explicit VR Little Endian
// body with a minimal preamble, magic and file meta group so it can be
// parsed back with FromBytes.
func buildFixtureAround(t *testing.T, body []byte) []byte {
	t.Helper()
	return append(buildMetaOnly(t), body...)
}

// buildEncapsulatedPixelDataBytes hand-encodes a minimal encapsulated
// Pixel Data element: Basic Offset Table item, one compressed frame
// item, and the Sequence Delimitation Item that closes it.
func buildEncapsulatedPixelDataBytes() []byte {
	var buf bytes.Buffer
	var tb [4]byte

	writeTag := func(t tag.Tag) {
		binary.LittleEndian.PutUint16(tb[0:2], t.Group)
		binary.LittleEndian.PutUint16(tb[2:4], t.Element)
		buf.Write(tb[:])
	}
	writeLen := func(n uint32) {
		lb := make([]byte, 4)
		binary.LittleEndian.PutUint32(lb, n)
		buf.Write(lb)
	}

	writeTag(tag.PixelData)
	buf.WriteString(string(vr.OB))
	buf.Write([]byte{0, 0})
	writeLen(0xFFFFFFFF)

	writeTag(tag.Item)
	writeLen(4)
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00})

	frame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	writeTag(tag.Item)
	writeLen(uint32(len(frame)))
	buf.Write(frame)

	writeTag(tag.SequenceDelimitation)
	writeLen(0)

	return buf.Bytes()
}

func TestEncapsulatedPixelDataRoundTrip(t *testing.T) {
	obj, err := FromBytes(buildFixtureAround(t, buildEncapsulatedPixelDataBytes()))
	require.NoError(t, err)
	require.Empty(t, obj.Warnings)

	var out bytes.Buffer
	_, err = obj.WriteTo(&out, WriteOptions{})
	require.NoError(t, err)

	encoded := out.Bytes()
	assert.True(t, bytes.Contains(encoded, []byte{0xFE, 0xFF, 0xDD, 0xE0}),
		"encapsulated pixel data must close with a Sequence Delimitation Item, not an Item Delimitation")
	assert.False(t, bytes.Contains(encoded, []byte{0xFE, 0xFF, 0x0D, 0xE0}),
		"encapsulated pixel data must not close with an Item Delimitation")

	reloaded, err := FromBytes(encoded)
	require.NoError(t, err)
	require.Empty(t, reloaded.Warnings)

	val, err := reloaded.Value(QueryTag(tag.PixelData), QueryOptions{})
	require.NoError(t, err)
	pd, ok := val.(*PixelData)
	require.True(t, ok)
	require.Equal(t, 1, pd.NumFrames())
	frame, err := pd.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, frame)
}

func TestWriteGeneratesSOPInstanceUIDWhenAbsent(t *testing.T) {
	obj := &Object{Store: NewElementStore(Policy{ExplicitVR: true})}

	var out bytes.Buffer
	_, err := obj.WriteTo(&out, WriteOptions{})
	require.NoError(t, err)

	reloaded, err := FromBytes(out.Bytes())
	require.NoError(t, err)

	metaUID, err := reloaded.Value(QueryTag(tag.MediaStorageSOPInstanceUID), QueryOptions{})
	require.NoError(t, err)
	bodyUID, err := reloaded.Value(QueryTag(tag.SOPInstanceUID), QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, metaUID, bodyUID, "generated MediaStorageSOPInstanceUID and SOPInstanceUID must match")
	assert.True(t, strings.HasPrefix(metaUID.(string), "2.25."), "generated UID must use the UUID-derived 2.25 root")
}

func TestWriteLeavesExistingSOPInstanceUIDUntouched(t *testing.T) {
	obj, err := FromBytes(buildFixture(t))
	require.NoError(t, err)

	metaUIDBefore, err := obj.Value(QueryTag(tag.MediaStorageSOPInstanceUID), QueryOptions{})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = obj.WriteTo(&out, WriteOptions{})
	require.NoError(t, err)

	reloaded, err := FromBytes(out.Bytes())
	require.NoError(t, err)
	metaUIDAfter, err := reloaded.Value(QueryTag(tag.MediaStorageSOPInstanceUID), QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, metaUIDBefore, metaUIDAfter, "an already-present instance UID must survive a write unchanged")
}

func TestWriteOptionsOverridesTransferSyntax(t *testing.T) {
	obj, err := FromBytes(buildFixture(t))
	require.NoError(t, err)
	require.Equal(t, transfer.ExplicitVRLittleEndian, obj.TransferSyntax)

	var out bytes.Buffer
	_, err = obj.WriteTo(&out, WriteOptions{TransferSyntax: transfer.ExplicitVRBigEndian})
	require.NoError(t, err)

	reloaded, err := FromBytes(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, transfer.ExplicitVRBigEndian, reloaded.TransferSyntax)
}
