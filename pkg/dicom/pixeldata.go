package dicom

import (
	"fmt"
	"image"
	"io"
)

// PixelData is the decoded form of an encapsulated (7FE0,0010)
// element: Frames holds one compressed bitstream per frame and Offsets
// holds the Basic Offset Table (PS3.5 §A.4) read from the first item.
// The reader builds a PixelData only for encapsulated Pixel Data;
// native (uncompressed) Pixel Data keeps its bytes in the element's
// Raw and is not split into frames. This repository does not
// decompress encapsulated frames itself — see PixelCodec.
type PixelData struct {
	IsEncapsulated bool
	Frames         [][]byte
	Offsets        []uint32
}

// NumFrames returns the number of frames present.
func (pd *PixelData) NumFrames() int {
	return len(pd.Frames)
}

// Frame returns the raw (native) or compressed (encapsulated) bytes
// for frame i.
func (pd *PixelData) Frame(i int) ([]byte, error) {
	if i < 0 || i >= len(pd.Frames) {
		return nil, fmt.Errorf("%w: frame index %d, have %d frames", ErrNotFound, i, len(pd.Frames))
	}
	return pd.Frames[i], nil
}

// PixelCodec is the seam a caller satisfies to decompress or compress
// pixel data the core codec does not itself understand — any
// encapsulated transfer syntax (JPEG, JPEG-LS, JPEG 2000, RLE, ...).
// The core never implements one; RegisterPixelCodec lets a higher
// layer plug a real image-compression library in before calling
// Object.DecodeFrame.
type PixelCodec interface {
	// TransferSyntaxUID is the UID this codec handles.
	TransferSyntaxUID() string
	// Decode turns one frame's compressed bytes into an image.Image of
	// the given pixel dimensions.
	Decode(data []byte, rows, cols int) (image.Image, error)
	// Encode writes img to w in this codec's compressed format.
	Encode(w io.Writer, img image.Image) error
}

var pixelCodecs = map[string]PixelCodec{}

// RegisterPixelCodec makes codec available to DecodeFrame for its
// TransferSyntaxUID. Registering a second codec for the same
// UID replaces the first.
func RegisterPixelCodec(codec PixelCodec) {
	pixelCodecs[codec.TransferSyntaxUID()] = codec
}

// lookupPixelCodec returns the codec registered for uid, if any.
func lookupPixelCodec(uid string) (PixelCodec, bool) {
	c, ok := pixelCodecs[uid]
	return c, ok
}

// Volume is the minimal shape the core hands a caller that wants to
// reshape decoded samples into a numeric array (e.g. with
// gonum.org/v1/gonum/mat): post-codec uint16 samples in Data, in
// row-major, frame-sequential order. It is a plain value type; nothing
// in the core builds one or does numeric processing of its own.
type Volume struct {
	Width, Height, Frames int
	Data                  []uint16
}
