package dicom

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jpfielding/godcm/pkg/dicom/dictionary"
	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/transfer"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
)

// maxHierarchyDepth bounds the sequence/item nesting the reader will
// track explicitly. A file nested deeper than this is almost
// certainly malformed (or adversarial); rather than grow the scope
// stack without limit, the reader logs one HierarchyOverflow warning
// and keeps flattening further nesting into the current level.
const maxHierarchyDepth = 256

// scope is one open sequence/item frame. endOffset is the byte offset
// (into Reader.full) at which this frame's contents end; -1 means
// undefined length (closed by an explicit delimiter item instead).
type scope struct {
	endOffset int64
}

// Reader parses a Part-10 stream into an ElementStore. Unlike reading
// through a bare io.Reader, Reader buffers the whole input up front so
// the preamble/magic check can rewind on failure instead of requiring
// the caller to re-open the stream.
type Reader struct {
	full []byte
	br   *bytes.Reader

	policy   Policy
	tsUID    string
	metaDone bool
	active   transfer.Syntax

	store *ElementStore

	warnings        []string
	hierarchyWarned bool
}

// NewReader creates a Reader over the full contents of data.
func NewReader(data []byte) *Reader {
	return &Reader{
		full:   data,
		br:     bytes.NewReader(data),
		policy: Policy{ExplicitVR: true, BigEndian: false},
		store:  NewElementStore(Policy{ExplicitVR: true, BigEndian: false}),
	}
}

func (r *Reader) offset() int64 {
	return int64(len(r.full)) - int64(r.br.Len())
}

func (r *Reader) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	slog.Warn(msg)
}

// readN reads exactly n bytes, distinguishing a clean end of stream
// (io.EOF with nothing read) from a truncated element (anything read
// but not enough).
func (r *Reader) readN(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	k, err := io.ReadFull(r.br, buf)
	if err == io.EOF && k == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedLastElement, err)
	}
	return buf, nil
}

// Read parses the full input and returns the resulting store, the
// active (body) transfer syntax, and the reader's accumulated
// warnings. Parse errors other than a clean truncation at the
// top-level stream end are returned as errors; malformed individual
// elements are recovered from and logged as warnings instead.
func (r *Reader) Read() (store *ElementStore, syntax transfer.Syntax, warnings []string, err error) {
	// A bare io.EOF reaching here came from a field after the tag, so
	// the stream ended inside an element.
	defer func() {
		if err == io.EOF {
			err = fmt.Errorf("%w: %v", ErrTruncatedLastElement, err)
		}
	}()
	if err := r.readPreambleAndMagic(); err != nil {
		return nil, "", r.warnings, err
	}

	var stack []scope
	for {
		r.closeFinishedScopes(&stack)

		tagBytes, err := r.readN(4)
		if err == io.EOF {
			if len(stack) > 0 {
				r.warn("stream ended with %d open sequence/item scope(s)", len(stack))
			}
			break
		}
		if err != nil {
			return nil, "", r.warnings, err
		}
		var tb [4]byte
		copy(tb[:], tagBytes)
		t := decodeTag(tb, r.policy)

		if !r.metaDone && !t.IsGroup0002() {
			deflated := transfer.Syntax(r.tsUID).IsDeflated()
			if deflated {
				// The deflated body starts at this tag: hand its bytes back
				// so they are inflated with the rest, then read it again.
				if _, err := r.br.Seek(-4, io.SeekCurrent); err != nil {
					return nil, "", r.warnings, err
				}
			}
			r.switchToBody()
			if deflated {
				tagBytes, err := r.readN(4)
				if err != nil {
					return nil, "", r.warnings, err
				}
				copy(tb[:], tagBytes)
			}
			// Decode the tag again under the body's byte order.
			t = decodeTag(tb, r.policy)
		}

		level := len(stack)

		if t.IsItemFamily() {
			if err := r.readItemFamily(t, level, &stack); err != nil {
				return nil, "", r.warnings, err
			}
			continue
		}

		v, length, err := r.readVRAndLength(t)
		if err != nil {
			return nil, "", r.warnings, err
		}

		if length != 0xFFFFFFFF && length%2 != 0 {
			r.warn("odd value length %d for %s, reading as-is", length, t)
		}

		if v == vr.SQ {
			start := r.offset()
			r.appendElement(&Element{Tag: t, VR: vr.SQ, Length: length}, level)
			r.pushScope(&stack, length, start)
			continue
		}

		if length == 0xFFFFFFFF {
			if t == tag.PixelData {
				// Encapsulated Pixel Data is framed on the wire as OB with an
				// undefined length, but it behaves like a sequence of items
				// terminated by a Sequence Delimitation Item: promote its
				// logical VR to SQ so the writer closes it with FFFE,E0DD
				// instead of the Item Delimitation it would pick for a plain
				// undefined-length element. It is appended before its items
				// so they follow it as its children.
				elem := &Element{Tag: t, VR: vr.SQ, Length: 0xFFFFFFFF}
				r.appendElement(elem, level)
				pd, err := r.readEncapsulatedPixelData(level)
				if err != nil {
					return nil, "", r.warnings, err
				}
				elem.Value = pd
				continue
			}
			r.warn("undefined length on non-sequence element %s, treating as opaque nested scope", t)
			start := r.offset()
			r.appendElement(&Element{Tag: t, VR: v, Length: length}, level)
			r.pushScope(&stack, length, start)
			continue
		}

		raw, err := r.readN(int(length))
		if err != nil {
			return nil, "", r.warnings, err
		}
		value, err := decodeValue(raw, v, r.policy)
		if err != nil {
			r.warn("failed to decode %s as %s: %v", t, v, err)
			value = raw
		}
		elem := &Element{Tag: t, VR: v, Length: length, Raw: raw, Value: value}
		r.appendElement(elem, level)

		if t == tag.TransferSyntaxUID {
			if s, ok := value.(string); ok {
				r.tsUID = s
			}
		}
	}

	return r.store, r.active, r.warnings, nil
}

func (r *Reader) appendElement(e *Element, level int) {
	r.store.Append(e, level)
}

// closeFinishedScopes pops every scope whose known end offset has
// been reached by the current read position.
func (r *Reader) closeFinishedScopes(stack *[]scope) {
	for len(*stack) > 0 {
		top := (*stack)[len(*stack)-1]
		if top.endOffset < 0 || r.offset() < top.endOffset {
			break
		}
		*stack = (*stack)[:len(*stack)-1]
	}
}

func (r *Reader) pushScope(stack *[]scope, length uint32, start int64) {
	if len(*stack)+1 > maxHierarchyDepth {
		if !r.hierarchyWarned {
			r.warn("sequence/item nesting exceeds %d levels, flattening further nesting", maxHierarchyDepth)
			r.hierarchyWarned = true
		}
		return
	}
	if length == 0xFFFFFFFF {
		*stack = append(*stack, scope{endOffset: -1})
		return
	}
	*stack = append(*stack, scope{endOffset: start + int64(length)})
}

// readItemFamily handles FFFE,E000 (item start), FFFE,E00D (item
// delimiter) and FFFE,E0DD (sequence delimiter). Item start pushes a
// new scope and is recorded as an element so its own children can
// nest beneath it; the two delimiters only pop a scope.
func (r *Reader) readItemFamily(t tag.Tag, level int, stack *[]scope) error {
	lenBytes, err := r.readN(4)
	if err != nil {
		return err
	}
	length := r.policy.order().Uint32(lenBytes)

	switch t.Element {
	case 0xE0DD, 0xE00D:
		if len(*stack) == 0 {
			r.warn("unexpected delimiter %s with no open scope", t)
			return nil
		}
		*stack = (*stack)[:len(*stack)-1]
		return nil
	case 0xE000:
		start := r.offset()
		r.appendElement(&Element{Tag: t, VR: vr.Item, Length: length}, level)
		r.pushScope(stack, length, start)
		return nil
	default:
		r.warn("unrecognized FFFE-group tag %s", t)
		return nil
	}
}

// readVRAndLength reads the VR (if explicit) and the length field,
// following the dictionary when VR is implicit.
func (r *Reader) readVRAndLength(t tag.Tag) (vr.VR, uint32, error) {
	o := r.policy.order()
	if !r.policy.ExplicitVR {
		lb, err := r.readN(4)
		if err != nil {
			return "", 0, err
		}
		entry, _ := dictionary.LookupTag(t)
		return entry.VR, o.Uint32(lb), nil
	}

	vrBytes, err := r.readN(2)
	if err != nil {
		return "", 0, err
	}
	v := vr.VR(strings.ToUpper(string(vrBytes)))
	if !knownVR(v) {
		r.warn("unknown VR %q for %s, defaulting to UN", string(vrBytes), t)
		v = vr.UN
	}
	if v.IsExplicitLength() {
		lb, err := r.readN(2)
		if err != nil {
			return "", 0, err
		}
		return v, uint32(o.Uint16(lb)), nil
	}
	if _, err := r.readN(2); err != nil { // reserved
		return "", 0, err
	}
	lb, err := r.readN(4)
	if err != nil {
		return "", 0, err
	}
	return v, o.Uint32(lb), nil
}

func knownVR(v vr.VR) bool {
	switch v {
	case vr.AE, vr.AS, vr.AT, vr.CS, vr.DA, vr.DS, vr.DT, vr.FL, vr.FD, vr.IS,
		vr.LO, vr.LT, vr.OB, vr.OD, vr.OF, vr.OL, vr.OW, vr.PN, vr.SH, vr.SL,
		vr.SQ, vr.SS, vr.ST, vr.TM, vr.UC, vr.UI, vr.UL, vr.UN, vr.UR, vr.US, vr.UT:
		return true
	}
	return false
}

// readEncapsulatedPixelData reads the Basic Offset Table item
// followed by one compressed-bitstream item per frame, stopping at
// the Sequence Delimitation Item. Each item is also recorded as a
// child element so Print/hierarchy queries see them like any other
// nested content.
func (r *Reader) readEncapsulatedPixelData(level int) (*PixelData, error) {
	pd := &PixelData{IsEncapsulated: true}
	o := r.policy.order()

	botTagBytes, err := r.readN(4)
	if err != nil {
		return nil, err
	}
	var tb [4]byte
	copy(tb[:], botTagBytes)
	botTag := decodeTag(tb, r.policy)
	if botTag != tag.Item {
		return nil, fmt.Errorf("%w: expected Basic Offset Table item, got %s", ErrTruncatedLastElement, botTag)
	}
	botLenBytes, err := r.readN(4)
	if err != nil {
		return nil, err
	}
	botLen := o.Uint32(botLenBytes)
	botRaw, err := r.readN(int(botLen))
	if err != nil {
		return nil, err
	}
	for i := 0; i+4 <= len(botRaw); i += 4 {
		pd.Offsets = append(pd.Offsets, o.Uint32(botRaw[i:]))
	}
	r.appendElement(&Element{Tag: tag.Item, VR: vr.Item, Length: botLen, Raw: botRaw}, level+1)

	for {
		itemTagBytes, err := r.readN(4)
		if err != nil {
			return nil, err
		}
		copy(tb[:], itemTagBytes)
		itemTag := decodeTag(tb, r.policy)
		lenBytes, err := r.readN(4)
		if err != nil {
			return nil, err
		}
		itemLen := o.Uint32(lenBytes)

		if itemTag == tag.SequenceDelimitation {
			return pd, nil
		}
		if itemTag != tag.Item {
			return nil, fmt.Errorf("%w: expected pixel data item, got %s", ErrTruncatedLastElement, itemTag)
		}
		frame, err := r.readN(int(itemLen))
		if err != nil {
			return nil, err
		}
		pd.Frames = append(pd.Frames, frame)
		r.appendElement(&Element{Tag: tag.Item, VR: vr.Item, Length: itemLen, Raw: frame}, level+1)
	}
}

// readPreambleAndMagic reads the 128-byte preamble and "DICM" magic.
// A stream shorter than the preamble plus magic (132 bytes) is
// ErrTooShort; such a stream is not parsed from byte zero. A stream
// long enough but missing the magic is tolerated: the reader rewinds
// to the start and proceeds as if there were no preamble at all,
// logging a warning, since some DICOM-adjacent producers omit it.
func (r *Reader) readPreambleAndMagic() error {
	if len(r.full) < 132 {
		return ErrTooShort
	}
	if _, err := r.readN(128); err != nil {
		return ErrTooShort
	}
	magic, err := r.readN(4)
	if err != nil || string(magic) != "DICM" {
		r.warn("missing DICM magic, assuming no preamble")
		if _, err := r.br.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}

// switchToBody applies the FSM transition out of the always-Explicit-
// VR-LE file meta group, deriving the body's Policy from the
// Transfer Syntax UID read from 0002,0010 (or defaulting to Implicit
// VR Little Endian if none was present). A deflated transfer syntax
// inflates the remainder of the stream in place before parsing
// continues.
func (r *Reader) switchToBody() {
	r.metaDone = true
	uid := transfer.Syntax(r.tsUID)
	if r.tsUID == "" {
		uid = transfer.ImplicitVRLittleEndian
		r.warn("no TransferSyntaxUID found in file meta group, defaulting to Implicit VR Little Endian")
	} else if !transfer.Valid(uid) {
		r.warn("unrecognized transfer syntax %q, assuming Explicit VR Little Endian with compressed pixel data", r.tsUID)
	}
	r.active = uid
	explicit, bigEndian := transfer.Policy(uid)
	r.policy = Policy{ExplicitVR: explicit, BigEndian: bigEndian}
	r.store.SetPolicy(r.policy)

	if uid.IsDeflated() {
		r.inflateRemainder()
	}
}

// inflateRemainder replaces the unread tail of the stream with its
// raw-DEFLATE-decompressed form, per PS3.5's use of the deflate
// algorithm (no zlib/gzip framing) for the Deflated Explicit VR
// Little Endian transfer syntax.
func (r *Reader) inflateRemainder() {
	rest := make([]byte, r.br.Len())
	_, _ = r.br.Read(rest)
	inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(rest)))
	if err != nil {
		r.warn("failed to inflate deflated transfer syntax body: %v", err)
		r.full = rest
		r.br = bytes.NewReader(rest)
		return
	}
	r.full = inflated
	r.br = bytes.NewReader(inflated)
}
