package dicom

import (
	"testing"

	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPopulatedStore(t *testing.T) *ElementStore {
	t.Helper()
	s := NewElementStore(Policy{ExplicitVR: true})

	groupLen := &Element{Tag: tag.New(0x0008, 0x0000), VR: vr.UL, Value: uint32(0), Raw: make([]byte, 4)}
	s.Append(groupLen, 0)

	sopClass := &Element{Tag: tag.New(0x0008, 0x0016), VR: vr.UI, Value: "1.2.840.10008.5.1.4.1.1.2", Raw: []byte("1.2.840.10008.5.1.4.1.1.2")}
	s.Append(sopClass, 0)

	seq := &Element{Tag: tag.New(0x0008, 0x1140), VR: vr.SQ, Length: 0xFFFFFFFF}
	s.Append(seq, 0)

	item := &Element{Tag: tag.Item, VR: vr.Item, Length: 0xFFFFFFFF}
	s.Append(item, 1)

	inner := &Element{Tag: tag.New(0x0008, 0x1150), VR: vr.UI, Value: "1.2.3", Raw: []byte("1.2.3")}
	s.Append(inner, 2)

	return s
}

func TestChildrenAndParents(t *testing.T) {
	s := newPopulatedStore(t)

	// seq is at index 2, item at 3, inner at 4.
	children := s.Children(2, true)
	assert.Equal(t, []int{3}, children, "direct children of the SQ should be its one item")

	allDescendants := s.Children(2, false)
	assert.Equal(t, []int{3, 4}, allDescendants)

	parents := s.Parents(4)
	require.Len(t, parents, 2)
	assert.Equal(t, 2, parents[0], "outermost ancestor (the SQ) first")
	assert.Equal(t, 3, parents[1], "then the item")
}

func TestFindAmbiguousWithoutAll(t *testing.T) {
	s := NewElementStore(Policy{ExplicitVR: true})
	t1 := tag.New(0x0010, 0x0010)
	s.Append(&Element{Tag: t1, VR: vr.PN, Value: "A"}, 0)
	s.Append(&Element{Tag: t1, VR: vr.PN, Value: "B"}, 0)

	_, err := s.Value(QueryTag(t1), QueryOptions{})
	assert.ErrorIs(t, err, ErrAmbiguousQuery)

	val, err := s.Value(QueryTag(t1), QueryOptions{All: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B"}, val)
}

func TestFindNotFoundSilent(t *testing.T) {
	s := NewElementStore(Policy{ExplicitVR: true})
	_, err := s.Value(QueryTag(tag.New(0x0010, 0x0010)), QueryOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	val, err := s.Value(QueryTag(tag.New(0x0010, 0x0010)), QueryOptions{Silent: true})
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestSetMaintainsGroupLength(t *testing.T) {
	s := NewElementStore(Policy{ExplicitVR: true})
	glTag := tag.New(0x0010, 0x0000)
	s.Append(&Element{Tag: glTag, VR: vr.UL, Value: uint32(0), Raw: make([]byte, 4)}, 0)
	nameTag := tag.New(0x0010, 0x0010)
	s.Append(&Element{Tag: nameTag, VR: vr.PN, Value: "A", Raw: []byte("A")}, 0)

	err := s.Set(QueryTag(nameTag), "DOE^JANE", vr.PN, QueryOptions{})
	require.NoError(t, err)

	gl, err := s.Value(QueryTag(glTag), QueryOptions{})
	require.NoError(t, err)
	assert.Greater(t, gl.(uint32), uint32(0), "group length must grow after a longer value is set")
}

func TestSetWithCreateAppendsTopLevel(t *testing.T) {
	s := NewElementStore(Policy{ExplicitVR: true})
	t1 := tag.New(0x0010, 0x0020)
	err := s.Set(QueryTag(t1), "12345", vr.LO, QueryOptions{Create: true})
	require.NoError(t, err)

	val, err := s.Value(QueryTag(t1), QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "12345", val)
}

func TestSetWithCreateInsertsInLexicographicOrder(t *testing.T) {
	s := NewElementStore(Policy{ExplicitVR: true})
	patientID := tag.New(0x0010, 0x0020)
	require.NoError(t, s.Set(QueryTag(patientID), "12345", vr.LO, QueryOptions{Create: true}))

	patientName := tag.New(0x0010, 0x0010)
	require.NoError(t, s.Set(QueryTag(patientName), "DOE^JANE", vr.PN, QueryOptions{Create: true}))

	require.Equal(t, 2, s.Len())
	assert.Equal(t, patientName, s.At(0).Tag, "0010,0010 must be inserted before the pre-existing 0010,0020")
	assert.Equal(t, patientID, s.At(1).Tag)
}

func TestSetWithCreateInsertsBeforeNestedSequence(t *testing.T) {
	s := newPopulatedStore(t)
	// newPopulatedStore holds (0008,0000), (0008,0016), (0008,1140)=SQ
	// with a nested item and inner element. A new (0008,0018) must land
	// between the existing top-level tags, before the SQ and its
	// descendants, not appended after them.
	newTag := tag.New(0x0008, 0x0018)
	require.NoError(t, s.Set(QueryTag(newTag), "1.2.3.4", vr.UI, QueryOptions{Create: true}))

	idx, err := s.find(QueryTag(newTag), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.Equal(t, 2, idx[0], "new element must sit before the SQ at the former index 2")
	assert.Equal(t, 0, s.At(idx[0]).Level)
}

func TestRemoveDeletesDescendantSubtree(t *testing.T) {
	s := newPopulatedStore(t)
	seqTag := tag.New(0x0008, 0x1140)

	err := s.Remove(QueryTag(seqTag), QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len(), "removing the SQ should also remove its item and inner element")
	for _, e := range s.All() {
		assert.NotEqual(t, seqTag, e.Tag)
	}
}

func TestOrderingPreservedAfterMutation(t *testing.T) {
	s := NewElementStore(Policy{ExplicitVR: true})
	tags := []tag.Tag{tag.New(0x0008, 0x0018), tag.New(0x0010, 0x0010), tag.New(0x0010, 0x0020)}
	for _, tg := range tags {
		s.Append(&Element{Tag: tg, VR: vr.LO, Value: "x", Raw: []byte("x")}, 0)
	}

	err := s.Set(QueryTag(tags[1]), "y", vr.LO, QueryOptions{})
	require.NoError(t, err)

	for i, e := range s.All() {
		assert.Equal(t, tags[i], e.Tag, "Set must not reorder existing elements")
	}
}
