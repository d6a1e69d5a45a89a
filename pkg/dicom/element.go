package dicom

import (
	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
)

// Element is one decoded data element: a tag, the VR it was decoded
// under, its raw wire bytes, a typed Value (see codec.go for the
// VR-to-Go-type mapping), and the nesting Level it was found at (0 for
// top-level elements, incrementing per sequence/item boundary). An
// Element's parent chain is not stored on the Element itself — it is
// derived from Level by scanning the owning ElementStore, per the
// flat-vector-plus-level-column model Store implements.
type Element struct {
	Tag    tag.Tag
	VR     vr.VR
	Length uint32
	Raw    []byte
	Value  any
	Level  int
}

// QueryKind discriminates the three ways a caller may address an
// element: by its position in read order, by tag, or by dictionary
// name. Using one enum type instead of three overloaded lookup
// functions keeps Store's surface to a handful of methods that all
// take a Query.
type QueryKind int

const (
	QueryKindIndex QueryKind = iota
	QueryKindTag
	QueryKindName
)

// Query addresses one or more elements in a Store.
type Query struct {
	Kind  QueryKind
	Index int
	Tag   tag.Tag
	Name  string
}

// QueryIndex addresses the element at position i in read order.
func QueryIndex(i int) Query { return Query{Kind: QueryKindIndex, Index: i} }

// QueryTag addresses every element carrying tag t.
func QueryTag(t tag.Tag) Query { return Query{Kind: QueryKindTag, Tag: t} }

// QueryName addresses every element whose dictionary name is name.
func QueryName(name string) Query { return Query{Kind: QueryKindName, Name: name} }

// QueryOptions modifies how a Query resolves against a Store.
type QueryOptions struct {
	// All returns every match instead of requiring exactly one.
	// Without All, a Query matching more than one element is
	// ErrAmbiguousQuery. Set ignores All and writes every match.
	All bool
	// Silent suppresses ErrNotFound, returning zero matches instead.
	Silent bool
	// Partial matches Name as a case-sensitive substring instead of
	// requiring an exact dictionary name match.
	Partial bool
	// Create inserts a new top-level element, at the position that
	// keeps tag ordering lexicographically non-decreasing, when Set's
	// query has no match, instead of failing.
	Create bool
	// AlreadyEncoded tells Set that the supplied value is already wire
	// bytes (Raw), so it should skip VR-driven encoding.
	AlreadyEncoded bool
}
