package dicom

import (
	"fmt"
	"strings"

	"github.com/jpfielding/godcm/pkg/dicom/dictionary"
	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
)

// ElementStore holds a dataset's elements as an ordered, flat slice
// with a per-Element Level rather than a map (which cannot preserve
// read order or represent a tag repeated across sibling items) or a
// pointer tree (which cannot be walked, printed, or round-tripped as
// cheaply as a flat vector). Children and parents are derived by
// scanning runs of the Level column instead of being stored as links.
type ElementStore struct {
	elements []*Element
	policy   Policy
}

// NewElementStore creates an empty store that encodes new/edited
// values under policy.
func NewElementStore(policy Policy) *ElementStore {
	return &ElementStore{policy: policy}
}

// Policy returns the store's current encoding policy.
func (s *ElementStore) Policy() Policy { return s.policy }

// SetPolicy changes the encoding policy used by future Set/Remove
// byte-math (the Writer calls this when the transfer syntax changes
// mid-construction).
func (s *ElementStore) SetPolicy(p Policy) { s.policy = p }

// Len returns the element count.
func (s *ElementStore) Len() int { return len(s.elements) }

// At returns the element at position i, or nil if out of range.
func (s *ElementStore) At(i int) *Element {
	if i < 0 || i >= len(s.elements) {
		return nil
	}
	return s.elements[i]
}

// All returns every element in read order. The returned slice aliases
// the store's internal slice; callers must not mutate it directly.
func (s *ElementStore) All() []*Element {
	return s.elements
}

// Append adds e to the end of the store at the given level. Used by
// the Reader while parsing; it does not touch group-length elements,
// since a freshly parsed file's group lengths already describe its
// own bytes.
func (s *ElementStore) Append(e *Element, level int) {
	e.Level = level
	s.elements = append(s.elements, e)
}

// find resolves q against the store, honoring opts.All/opts.Silent.
func (s *ElementStore) find(q Query, opts QueryOptions) ([]int, error) {
	var matches []int
	switch q.Kind {
	case QueryKindIndex:
		if q.Index >= 0 && q.Index < len(s.elements) {
			matches = []int{q.Index}
		}
	case QueryKindTag:
		for i, e := range s.elements {
			if e.Tag == q.Tag {
				matches = append(matches, i)
			}
		}
	case QueryKindName:
		for i, e := range s.elements {
			entry, _ := dictionary.LookupTag(e.Tag)
			if opts.Partial {
				if strings.Contains(entry.Name, q.Name) {
					matches = append(matches, i)
				}
			} else if entry.Name == q.Name {
				matches = append(matches, i)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown query kind %d", ErrInvalidTag, q.Kind)
	}

	if len(matches) == 0 {
		if opts.Silent {
			return nil, nil
		}
		return nil, ErrNotFound
	}
	if len(matches) > 1 && !opts.All {
		return nil, ErrAmbiguousQuery
	}
	return matches, nil
}

// Value resolves q to its decoded Value. With a single match it
// returns that Value directly; with opts.All and multiple matches it
// returns []any of each match's Value in store order.
func (s *ElementStore) Value(q Query, opts QueryOptions) (any, error) {
	idx, err := s.find(q, opts)
	if err != nil || len(idx) == 0 {
		return nil, err
	}
	if len(idx) == 1 {
		return s.elements[idx[0]].Value, nil
	}
	out := make([]any, len(idx))
	for i, pos := range idx {
		out[i] = s.elements[pos].Value
	}
	return out, nil
}

// Raw resolves q to its wire bytes. Raw always requires exactly one
// match — there is no well-defined way to concatenate heterogeneous
// element bytes, so a multi-match Raw query is ErrAmbiguousQuery even
// with opts.All set.
func (s *ElementStore) Raw(q Query, opts QueryOptions) ([]byte, error) {
	strict := opts
	strict.All = false
	idx, err := s.find(q, strict)
	if err != nil || len(idx) == 0 {
		return nil, err
	}
	return s.elements[idx[0]].Raw, nil
}

// Children returns the positions of pos's child elements: every
// element after pos whose Level is greater than pos's, stopping at the
// first element whose Level is not greater.
// directOnly limits the result to immediate children (Level ==
// parent+1); when false, every descendant is returned.
func (s *ElementStore) Children(pos int, directOnly bool) []int {
	e := s.At(pos)
	if e == nil {
		return nil
	}
	var out []int
	for i := pos + 1; i < len(s.elements); i++ {
		lvl := s.elements[i].Level
		if lvl <= e.Level {
			break
		}
		if !directOnly || lvl == e.Level+1 {
			out = append(out, i)
		}
	}
	return out
}

// Parents returns the positions of pos's ancestor elements, outermost
// first, by walking backward through decreasing Level runs.
func (s *ElementStore) Parents(pos int) []int {
	e := s.At(pos)
	if e == nil || e.Level == 0 {
		return nil
	}
	var chain []int
	wantLevel := e.Level - 1
	for i := pos - 1; i >= 0 && wantLevel >= 0; i-- {
		if s.elements[i].Level == wantLevel {
			chain = append(chain, i)
			wantLevel--
		}
	}
	// chain was built innermost-first; reverse to outermost-first.
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// headerOverhead returns the byte length of everything but an
// element's value: the tag, VR (if explicit), and length field. Item
// family tags never carry a VR on the wire.
func headerOverhead(t tag.Tag, v vr.VR, explicit bool) int {
	if t.IsItemFamily() {
		return 8 // tag(4) + length(4)
	}
	if !explicit {
		return 8 // tag(4) + length(4)
	}
	if v.IsExplicitLength() {
		return 8 // tag(4) + vr(2) + length(2)
	}
	return 12 // tag(4) + vr(2) + reserved(2) + length(4)
}

// Set encodes value under v's VR and the store's active Policy,
// writing it into the element(s) q resolves to. With opts.Create and
// no match, Set inserts a new top-level element at its tag-ordered
// position (Set cannot create
// inside a sequence — there is no well-defined insertion point without
// an explicit index). Every mutation keeps the owning group's
// group-length element in sync.
func (s *ElementStore) Set(q Query, value any, v vr.VR, opts QueryOptions) error {
	idx, err := s.find(q, QueryOptions{All: true, Silent: true, Partial: opts.Partial})
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		if !opts.Create {
			return ErrNotFound
		}
		return s.create(q, value, v, opts)
	}
	for _, pos := range idx {
		if err := s.setAt(pos, value, v, opts); err != nil {
			return err
		}
	}
	return nil
}

func (s *ElementStore) setAt(pos int, value any, v vr.VR, opts QueryOptions) error {
	e := s.elements[pos]
	oldSize := headerOverhead(e.Tag, e.VR, s.policy.ExplicitVR) + len(e.Raw)

	var raw []byte
	if opts.AlreadyEncoded {
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("%w: AlreadyEncoded value must be []byte, got %T", ErrEncodeFailure, value)
		}
		raw = b
	} else {
		encoded, err := encodeValue(value, v, s.policy)
		if err != nil {
			return err
		}
		raw = encoded
	}

	e.VR = v
	e.Raw = raw
	e.Length = uint32(len(raw))
	decoded, err := decodeValue(raw, v, s.policy)
	if err != nil {
		return err
	}
	e.Value = decoded

	newSize := headerOverhead(e.Tag, e.VR, s.policy.ExplicitVR) + len(raw)
	s.maintainGroupLength(e.Tag.Group, newSize-oldSize)
	return nil
}

func (s *ElementStore) create(q Query, value any, v vr.VR, opts QueryOptions) error {
	var t tag.Tag
	switch q.Kind {
	case QueryKindTag:
		t = q.Tag
	case QueryKindName:
		entry, ok := dictionary.LookupName(q.Name)
		if !ok {
			return fmt.Errorf("%w: cannot create element for unknown name %q", ErrInvalidTag, q.Name)
		}
		t = entry.Tag
	default:
		return fmt.Errorf("%w: Create requires a tag or name query", ErrInvalidTag)
	}

	var raw []byte
	if opts.AlreadyEncoded {
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("%w: AlreadyEncoded value must be []byte, got %T", ErrEncodeFailure, value)
		}
		raw = b
	} else {
		encoded, err := encodeValue(value, v, s.policy)
		if err != nil {
			return err
		}
		raw = encoded
	}
	decoded, err := decodeValue(raw, v, s.policy)
	if err != nil {
		return err
	}
	e := &Element{Tag: t, VR: v, Raw: raw, Length: uint32(len(raw)), Value: decoded, Level: 0}
	s.insertTopLevel(e)

	s.maintainGroupLength(t.Group, headerOverhead(t, v, s.policy.ExplicitVR)+len(raw))
	return nil
}

// insertTopLevel inserts e among the store's top-level elements so the
// global ordering remains lexicographically non-decreasing by tag,
// rather than appending unconditionally. The search only considers
// Level-0 elements: inserting immediately before the first top-level
// element whose tag is greater also places e before that element's
// descendant run, which always follows it directly.
func (s *ElementStore) insertTopLevel(e *Element) {
	insertAt := len(s.elements)
	for i, el := range s.elements {
		if el.Level != 0 {
			continue
		}
		if e.Tag.Less(el.Tag) {
			insertAt = i
			break
		}
	}
	s.elements = append(s.elements, nil)
	copy(s.elements[insertAt+1:], s.elements[insertAt:])
	s.elements[insertAt] = e
}

// Remove deletes every element q resolves to, along with each match's
// descendant subtree (so removing a sequence also removes its items),
// and updates the owning group's group-length element.
func (s *ElementStore) Remove(q Query, opts QueryOptions) error {
	idx, err := s.find(q, opts)
	if err != nil {
		return err
	}
	// Expand each match to include its descendant run, then delete
	// highest-index-first so earlier deletions don't shift later ones.
	toDelete := map[int]bool{}
	for _, pos := range idx {
		toDelete[pos] = true
		for _, child := range s.Children(pos, false) {
			toDelete[child] = true
		}
	}
	for pos := len(s.elements) - 1; pos >= 0; pos-- {
		if !toDelete[pos] {
			continue
		}
		e := s.elements[pos]
		size := headerOverhead(e.Tag, e.VR, s.policy.ExplicitVR) + len(e.Raw)
		s.elements = append(s.elements[:pos], s.elements[pos+1:]...)
		s.maintainGroupLength(e.Tag.Group, -size)
	}
	return nil
}

// maintainGroupLength adjusts the (group,0000) element's value by
// delta bytes, if one exists. Groups that never had a group-length
// element (routine under every transfer syntax negotiated after the
// 2008 standard revision) are left alone.
func (s *ElementStore) maintainGroupLength(group uint16, delta int) {
	if delta == 0 {
		return
	}
	glTag := tag.Tag{Group: group, Element: 0x0000}
	for _, e := range s.elements {
		if e.Tag != glTag {
			continue
		}
		cur, ok := e.Value.(uint32)
		if !ok {
			return
		}
		next := int64(cur) + int64(delta)
		if next < 0 {
			next = 0
		}
		e.Value = uint32(next)
		raw, err := encodeValue(e.Value, vr.UL, s.policy)
		if err != nil {
			return
		}
		e.Raw = raw
		e.Length = uint32(len(raw))
		return
	}
}
