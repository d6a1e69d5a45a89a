// Package dicom implements a byte-faithful DICOM Part-10 codec: a
// Reader and Writer over an ordered ElementStore, driven by the
// transfer-syntax state machine in pkg/dicom/transfer and the tag/VR
// dictionary in pkg/dicom/dictionary.
package dicom

import (
	"fmt"
	"image"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jpfielding/godcm/pkg/dicom/dictionary"
	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/transfer"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
)

// Object is an in-memory DICOM dataset: an ElementStore plus the
// transfer syntax it was parsed under and any warnings the parse
// accumulated. It is the library's main entry point.
type Object struct {
	Store          *ElementStore
	TransferSyntax transfer.Syntax
	Warnings       []string
}

// Open reads a Part-10 file from path into an Object.
func Open(path string) (*Object, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return FromBytes(data)
}

// FromBytes parses an in-memory Part-10 buffer into an Object.
func FromBytes(data []byte) (*Object, error) {
	r := NewReader(data)
	store, syntax, warnings, err := r.Read()
	if err != nil {
		return nil, err
	}
	return &Object{Store: store, TransferSyntax: syntax, Warnings: warnings}, nil
}

// Write serializes o to path, creating parent directories as needed.
func (o *Object) Write(path string, opts WriteOptions) (int64, error) {
	if opts.TransferSyntax == "" {
		opts.TransferSyntax = o.TransferSyntax
	}
	return WriteFile(path, o.Store, opts)
}

// WriteTo serializes o using opts.TransferSyntax (or the Object's
// current syntax) without touching the filesystem.
func (o *Object) WriteTo(w io.Writer, opts WriteOptions) (int64, error) {
	if opts.TransferSyntax == "" {
		opts.TransferSyntax = o.TransferSyntax
	}
	return Write(w, o.Store, opts)
}

// Value resolves query against o's store. See ElementStore.Value.
func (o *Object) Value(q Query, opts QueryOptions) (any, error) {
	return o.Store.Value(q, opts)
}

// Raw resolves query to its wire bytes. See ElementStore.Raw.
func (o *Object) Raw(q Query, opts QueryOptions) ([]byte, error) {
	return o.Store.Raw(q, opts)
}

// Set encodes value for the elements query resolves to, inferring the
// VR from the dictionary when the query names an existing element or
// a known tag/name; callers that need an explicit VR (e.g. creating
// a brand new private tag) should look it up themselves and pass it
// via SetVR.
func (o *Object) Set(q Query, value any, opts QueryOptions) error {
	v, err := o.resolveVR(q, opts)
	if err != nil {
		return err
	}
	return o.Store.Set(q, value, v, opts)
}

// SetVR is Set with an explicit VR, bypassing dictionary inference.
func (o *Object) SetVR(q Query, value any, v vr.VR, opts QueryOptions) error {
	return o.Store.Set(q, value, v, opts)
}

func (o *Object) resolveVR(q Query, opts QueryOptions) (vr.VR, error) {
	if idx, err := o.Store.find(q, QueryOptions{All: true, Silent: true, Partial: opts.Partial}); err == nil && len(idx) > 0 {
		return o.Store.elements[idx[0]].VR, nil
	}
	switch q.Kind {
	case QueryKindTag:
		entry, _ := dictionary.LookupTag(q.Tag)
		return entry.VR, nil
	case QueryKindName:
		entry, ok := dictionary.LookupName(q.Name)
		if !ok {
			return "", fmt.Errorf("%w: cannot infer VR for unknown name %q", ErrInvalidTag, q.Name)
		}
		return entry.VR, nil
	default:
		return "", ErrNotFound
	}
}

// Remove deletes the elements query resolves to (and their children).
func (o *Object) Remove(q Query, opts QueryOptions) error {
	return o.Store.Remove(q, opts)
}

// Children returns the positions of pos's child elements.
func (o *Object) Children(pos int, directOnly bool) []int {
	return o.Store.Children(pos, directOnly)
}

// Parents returns the positions of pos's ancestor elements, outermost first.
func (o *Object) Parents(pos int) []int {
	return o.Store.Parents(pos)
}

// Segments splits the dataset body into byte chunks no larger than
// maxBytes, each a re-encoded, independently-decodable run of
// top-level elements (a sequence counts with all its nested items).
// Elements are never split, so a top-level element that alone encodes
// to more than maxBytes becomes a segment of its own, larger than
// maxBytes. File meta elements are not included; a segment
// is meant for handing chunks of a dataset's content elsewhere (bulk
// transport, deduplication), not a restartable file fragment.
func (o *Object) Segments(maxBytes int) ([][]byte, error) {
	_, bodyIdx := splitMetaBody(o.Store)
	explicit, bigEndian := transfer.Policy(o.activeSyntax())
	policy := Policy{ExplicitVR: explicit, BigEndian: bigEndian}

	var segments [][]byte
	var group []int
	var groupSize int

	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		b, err := encodeElements(o.Store, group, policy)
		if err != nil {
			return err
		}
		segments = append(segments, b)
		group, groupSize = nil, 0
		return nil
	}

	for _, idx := range bodyIdx {
		encoded, err := encodeElements(o.Store, []int{idx}, policy)
		if err != nil {
			return nil, err
		}
		size := len(encoded)
		if groupSize > 0 && groupSize+size > maxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		group = append(group, idx)
		groupSize += size
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return segments, nil
}

// DecodeFrame decodes frame i of the dataset's PixelData element into
// an image.Image, using the PixelCodec registered for the Object's
// active transfer syntax. It is the only place the core library
// touches a concrete pixel codec, and it does so entirely through the
// PixelCodec seam: callers that never registered one for this UID get
// ErrNotFound rather than a panic or a built-in (and necessarily
// out-of-scope) decompressor.
func (o *Object) DecodeFrame(i int) (image.Image, error) {
	val, err := o.Store.Value(QueryTag(tag.PixelData), QueryOptions{})
	if err != nil {
		return nil, err
	}
	pd, ok := val.(*PixelData)
	if !ok {
		return nil, fmt.Errorf("%w: %s did not decode as pixel data", ErrInvalidTag, tag.PixelData)
	}
	frame, err := pd.Frame(i)
	if err != nil {
		return nil, err
	}

	codec, ok := lookupPixelCodec(string(o.activeSyntax()))
	if !ok {
		return nil, fmt.Errorf("%w: no PixelCodec registered for %s", ErrNotFound, o.activeSyntax())
	}

	rows, _ := o.Value(QueryTag(tag.New(0x0028, 0x0010)), QueryOptions{Silent: true})
	cols, _ := o.Value(QueryTag(tag.New(0x0028, 0x0011)), QueryOptions{Silent: true})
	return codec.Decode(frame, toInt(rows), toInt(cols))
}

func toInt(v any) int {
	switch n := v.(type) {
	case uint16:
		return int(n)
	case int16:
		return int(n)
	default:
		return 0
	}
}

func (o *Object) activeSyntax() transfer.Syntax {
	if o.TransferSyntax != "" {
		return o.TransferSyntax
	}
	return o.Store.activeSyntaxOrDefault()
}

// Print renders the dataset as an indented, per-level text listing:
// one line per element, indentation following Level, VR and name
// alongside the decoded value.
func (o *Object) Print() string {
	var b strings.Builder
	for _, e := range o.Store.All() {
		entry, _ := dictionary.LookupTag(e.Tag)
		fmt.Fprintf(&b, "%s%s %s %-32s %v\n",
			strings.Repeat("  ", e.Level), e.Tag, e.VR.String(), entry.Name, e.Value)
	}
	return b.String()
}

// Summary renders a one-line-per-tag-group overview, sorted by group,
// with an element count per group — useful for a quick sanity check
// of a large or unfamiliar file.
func (o *Object) Summary() string {
	counts := map[uint16]int{}
	for _, e := range o.Store.All() {
		counts[e.Tag.Group]++
	}
	groups := make([]uint16, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "transfer syntax: %s (%s)\n", o.activeSyntax(), o.activeSyntax().Name())
	fmt.Fprintf(&b, "elements: %d\n", o.Store.Len())
	for _, g := range groups {
		fmt.Fprintf(&b, "  group %04X: %d element(s)\n", g, counts[g])
	}
	if len(o.Warnings) > 0 {
		fmt.Fprintf(&b, "warnings: %d\n", len(o.Warnings))
	}
	return b.String()
}
