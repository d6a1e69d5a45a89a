package dicom

import (
	"bytes"
	"image"
	"io"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRLECodec is a test double for PixelCodec, standing in for a real
// compression library the way a caller would register one.
type fakeRLECodec struct{}

func (fakeRLECodec) TransferSyntaxUID() string { return "1.2.840.10008.1.2.5" }

func (fakeRLECodec) Decode(data []byte, rows, cols int) (image.Image, error) {
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	copy(img.Pix, data)
	return img, nil
}

func (fakeRLECodec) Encode(w io.Writer, img image.Image) error {
	_, err := w.Write([]byte("encoded"))
	return err
}

func TestRegisterAndLookupPixelCodec(t *testing.T) {
	RegisterPixelCodec(fakeRLECodec{})
	codec, ok := lookupPixelCodec("1.2.840.10008.1.2.5")
	require.True(t, ok)
	assert.Equal(t, "1.2.840.10008.1.2.5", codec.TransferSyntaxUID())

	_, ok = lookupPixelCodec("1.2.3.4.5.unused")
	assert.False(t, ok)
}

func TestPixelDataFrameAccess(t *testing.T) {
	pd := &PixelData{IsEncapsulated: true, Frames: [][]byte{{1, 2}, {3, 4}}, Offsets: []uint32{0, 2}}
	assert.Equal(t, 2, pd.NumFrames())

	frame, err := pd.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, frame)

	_, err = pd.Frame(5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeFrameWithoutRegisteredCodecFails(t *testing.T) {
	obj, err := FromBytes(buildFixture(t))
	require.NoError(t, err)

	_, err = obj.DecodeFrame(0)
	assert.ErrorIs(t, err, ErrNotFound, "no PixelData element and no codec should both resolve to not-found")
}

func TestFakeCodecEncode(t *testing.T) {
	var buf bytes.Buffer
	err := fakeRLECodec{}.Encode(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, "encoded", buf.String())
}
