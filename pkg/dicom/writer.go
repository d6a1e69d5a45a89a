package dicom

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/transfer"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
	"github.com/jpfielding/godcm/pkg/util"
)

// Default values synthesized into the file meta group when a caller
// writes an Object that never had them set explicitly.
const (
	defaultImplementationClassUID    = "1.2.826.0.1.3680043.9.7433.1.1"
	defaultImplementationVersionName = "GODCM_1_0"
)

// WriteOptions controls Write's output.
type WriteOptions struct {
	// TransferSyntax overrides the syntax written to 0002,0010 and
	// used to encode the body. Empty keeps whatever the Object is
	// already carrying (or Explicit VR Little Endian if none).
	TransferSyntax transfer.Syntax
}

// countingWriter tracks bytes written, the same atomic.Int64-backed
// wrapper the teacher's writer uses to return a byte count without
// threading one through every helper's return signature.
type countingWriter struct {
	n atomic.Int64
	w io.Writer
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err == nil {
		c.n.Add(int64(n))
	}
	return n, err
}

// Write serializes store as a complete Part-10 stream: 128-byte zero
// preamble, "DICM" magic, a synthesized/validated file meta group,
// then the body elements under opts.TransferSyntax (or, if unset, the
// store's own 0002,0010 value, Explicit VR Little Endian if absent).
func Write(w io.Writer, store *ElementStore, opts WriteOptions) (int64, error) {
	cw := &countingWriter{w: w}

	if _, err := cw.Write(make([]byte, 128)); err != nil {
		return cw.n.Load(), err
	}
	if _, err := cw.Write([]byte("DICM")); err != nil {
		return cw.n.Load(), err
	}

	metaPolicy := Policy{ExplicitVR: true, BigEndian: false}
	bodyUID := opts.TransferSyntax
	if bodyUID == "" {
		bodyUID = store.activeSyntaxOrDefault()
	}
	bodyExplicit, bodyBigEndian := transfer.Policy(bodyUID)
	bodyPolicy := Policy{ExplicitVR: bodyExplicit, BigEndian: bodyBigEndian}

	synthesizeMeta(store, bodyUID, metaPolicy, bodyPolicy)

	metaIdx, bodyIdx := splitMetaBody(store)
	metaBytes, err := encodeElements(store, metaIdx, metaPolicy)
	if err != nil {
		return cw.n.Load(), fmt.Errorf("encoding file meta group: %w", err)
	}
	if _, err := cw.Write(metaBytes); err != nil {
		return cw.n.Load(), err
	}

	bodyBytes, err := encodeElements(store, bodyIdx, bodyPolicy)
	if err != nil {
		return cw.n.Load(), fmt.Errorf("encoding dataset body: %w", err)
	}
	if bodyUID.IsDeflated() {
		var z bytes.Buffer
		fw, err := flate.NewWriter(&z, flate.DefaultCompression)
		if err != nil {
			return cw.n.Load(), err
		}
		if _, err := fw.Write(bodyBytes); err != nil {
			return cw.n.Load(), err
		}
		if err := fw.Close(); err != nil {
			return cw.n.Load(), err
		}
		bodyBytes = z.Bytes()
	}
	if _, err := cw.Write(bodyBytes); err != nil {
		return cw.n.Load(), err
	}

	return cw.n.Load(), nil
}

// WriteFile writes store to path, creating any missing parent
// directories first.
func WriteFile(path string, store *ElementStore, opts WriteOptions) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Write(f, store, opts)
}

// activeSyntaxOrDefault reads 0002,0010 out of the store, or returns
// Explicit VR Little Endian if the element is absent.
func (s *ElementStore) activeSyntaxOrDefault() transfer.Syntax {
	for _, e := range s.elements {
		if e.Tag == tag.TransferSyntaxUID {
			if str, ok := e.Value.(string); ok {
				return transfer.Syntax(str)
			}
		}
	}
	return transfer.ExplicitVRLittleEndian
}

// splitMetaBody partitions store's top-level indices into the file
// meta group (0002,xxxx) and everything else, in original order.
func splitMetaBody(store *ElementStore) (meta, body []int) {
	for i, e := range store.elements {
		if e.Level != 0 {
			continue
		}
		if e.Tag.IsGroup0002() {
			meta = append(meta, i)
		} else {
			body = append(body, i)
		}
	}
	return meta, body
}

// settingFunc returns a closure that encodes value under v/policy and
// writes it into the element t resolves to, updating it in place if
// present or inserting a fresh top-level element (at its
// lexicographically-ordered position) if not.
func settingFunc(store *ElementStore, policy Policy) func(t tag.Tag, v vr.VR, value any) {
	return func(t tag.Tag, v vr.VR, value any) {
		raw, err := encodeValue(value, v, policy)
		if err != nil {
			return
		}
		decoded, _ := decodeValue(raw, v, policy)
		if idx, _ := store.find(QueryTag(t), QueryOptions{Silent: true}); len(idx) > 0 {
			e := store.elements[idx[0]]
			e.VR, e.Raw, e.Length, e.Value = v, raw, uint32(len(raw)), decoded
			return
		}
		store.insertTopLevel(&Element{Tag: t, VR: v, Raw: raw, Length: uint32(len(raw)), Value: decoded, Level: 0})
	}
}

// synthesizeMeta fills in the four meta elements a well-formed
// Part-10 file always carries, when the store doesn't already have
// them, fills in a freshly generated SOPInstanceUID pair if the store
// has neither, then recomputes FileMetaInformationGroupLength.
//
// TransferSyntaxUID is handled separately from the other three: it is
// always written to match bodyUID (the syntax the body is actually
// about to be encoded under), even when the store already carries a
// different one, since writing a stale UID next to a body encoded
// under a different policy would make the file unparsable.
func synthesizeMeta(store *ElementStore, bodyUID transfer.Syntax, metaPolicy, bodyPolicy Policy) {
	metaSet := settingFunc(store, metaPolicy)
	ensure := func(t tag.Tag, v vr.VR, value any) {
		if idx, _ := store.find(QueryTag(t), QueryOptions{Silent: true}); len(idx) > 0 {
			return
		}
		metaSet(t, v, value)
	}

	ensure(tag.FileMetaInformationVersion, vr.OB, []byte{0x00, 0x01})
	metaSet(tag.TransferSyntaxUID, vr.UI, string(bodyUID))
	ensure(tag.ImplementationClassUID, vr.UI, defaultImplementationClassUID)
	ensure(tag.ImplementationVersionName, vr.SH, defaultImplementationVersionName)

	ensureSOPInstanceUID(store, metaSet, settingFunc(store, bodyPolicy))

	recomputeGroupLength(store, 0x0002, metaPolicy)
}

// ensureSOPInstanceUID gives a dataset constructed programmatically
// (never read from a file with its own identity already assigned) a
// matching MediaStorageSOPInstanceUID/SOPInstanceUID pair, derived from
// a fresh UUID under the 2.25 root. It never overwrites either tag if
// present, since a parsed object's existing instance identity must
// survive a round trip unchanged.
func ensureSOPInstanceUID(store *ElementStore, metaSet, bodySet func(tag.Tag, vr.VR, any)) {
	if idx, _ := store.find(QueryTag(tag.MediaStorageSOPInstanceUID), QueryOptions{Silent: true}); len(idx) > 0 {
		return
	}
	if idx, _ := store.find(QueryTag(tag.SOPInstanceUID), QueryOptions{Silent: true}); len(idx) > 0 {
		return
	}
	uid := util.NewUID()
	metaSet(tag.MediaStorageSOPInstanceUID, vr.UI, uid)
	bodySet(tag.SOPInstanceUID, vr.UI, uid)
}

// recomputeGroupLength sets (group,0000)'s value to the encoded byte
// length of every other element in group, creating the element if
// absent. Used at write time so group length is always consistent
// with what was actually just written, regardless of how many Set/
// Remove calls happened in between.
func recomputeGroupLength(store *ElementStore, group uint16, policy Policy) {
	var total int
	var glIdx = -1
	for i, e := range store.elements {
		if e.Level != 0 || e.Tag.Group != group {
			continue
		}
		if e.Tag.IsGroupLength() {
			glIdx = i
			continue
		}
		total += headerOverhead(e.Tag, e.VR, policy.ExplicitVR) + len(e.Raw)
	}
	raw, err := encodeValue(uint32(total), vr.UL, policy)
	if err != nil {
		return
	}
	if glIdx >= 0 {
		store.elements[glIdx].Value = uint32(total)
		store.elements[glIdx].Raw = raw
		store.elements[glIdx].Length = uint32(len(raw))
		return
	}
	glTag := tag.Tag{Group: group, Element: 0x0000}
	e := &Element{Tag: glTag, VR: vr.UL, Value: uint32(total), Raw: raw, Length: uint32(len(raw)), Level: 0}
	store.elements = append([]*Element{e}, store.elements...)
}

// encodeElements serializes the elements at the given top-level
// indices (and every descendant that follows each one), in order,
// under policy. It is the inverse of Reader's element loop: a stack
// of open SQ/Item containers is closed (possibly emitting a
// delimiter) whenever the walk returns to that container's level or
// shallower.
func encodeElements(store *ElementStore, topIdx []int, policy Policy) ([]byte, error) {
	var buf bytes.Buffer
	o := policy.order()

	writeTag := func(t tag.Tag) {
		var raw [4]byte
		o.PutUint16(raw[0:2], t.Group)
		o.PutUint16(raw[2:4], t.Element)
		buf.Write(raw[:])
	}
	writeU16 := func(v uint16) { b := make([]byte, 2); o.PutUint16(b, v); buf.Write(b) }
	writeU32 := func(v uint32) { b := make([]byte, 4); o.PutUint32(b, v); buf.Write(b) }

	var stack []*Element
	closeTo := func(level int) {
		for len(stack) > level {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.Length != 0xFFFFFFFF {
				continue
			}
			if top.VR == vr.SQ {
				writeTag(tag.SequenceDelimitation)
			} else {
				writeTag(tag.ItemDelimitation)
			}
			writeU32(0)
		}
	}

	var walk func(i, end int) int
	walk = func(i, end int) int {
		for i < end {
			e := store.elements[i]
			closeTo(e.Level)

			switch {
			case e.Tag.IsItemFamily() && len(e.Raw) > 0:
				writeTag(e.Tag)
				writeU32(uint32(len(e.Raw)))
				buf.Write(e.Raw)
			case e.Tag.IsItemFamily():
				writeTag(e.Tag)
				writeU32(e.Length)
				stack = append(stack, e)
			case e.Tag == tag.PixelData && e.Length == 0xFFFFFFFF:
				writeTag(e.Tag)
				if policy.ExplicitVR {
					buf.WriteString(string(vr.OB))
					writeU16(0)
				}
				writeU32(0xFFFFFFFF)
				stack = append(stack, e)
			case e.VR == vr.SQ:
				writeTag(e.Tag)
				if policy.ExplicitVR {
					buf.WriteString(string(vr.SQ))
					writeU16(0)
				}
				writeU32(e.Length)
				stack = append(stack, e)
			default:
				if err := writeRegularElement(&buf, e, policy, writeTag, writeU16, writeU32); err != nil {
					return i
				}
			}
			i++
		}
		return i
	}

	for _, start := range topIdx {
		end := start + 1
		for end < len(store.elements) && store.elements[end].Level > 0 {
			end++
		}
		walk(start, end)
	}
	closeTo(0)

	return buf.Bytes(), nil
}

func writeRegularElement(buf *bytes.Buffer, e *Element, policy Policy,
	writeTag func(tag.Tag), writeU16 func(uint16), writeU32 func(uint32)) error {
	// Binary numeric values are re-encoded so their byte order follows
	// policy, which may differ from the one they were parsed or set under.
	raw := e.Raw
	if (e.VR.IsNumericFixed() || e.VR == vr.AT) && e.Value != nil {
		if enc, err := encodeValue(e.Value, e.VR, policy); err == nil {
			raw = enc
		}
	}
	writeTag(e.Tag)
	if policy.ExplicitVR {
		v := e.VR
		if len(v) != 2 {
			v = vr.UN
		}
		buf.WriteString(string(v))
		if v.IsExplicitLength() {
			writeU16(uint16(len(raw)))
		} else {
			writeU16(0)
			writeU32(uint32(len(raw)))
		}
	} else {
		writeU32(uint32(len(raw)))
	}
	buf.Write(raw)
	return nil
}
