package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringRoundTrip(t *testing.T) {
	tg := New(0x0008, 0x0018)
	assert.Equal(t, "0008,0018", tg.String())

	parsed, ok := Parse(tg.String())
	assert.True(t, ok)
	assert.True(t, tg.Equals(parsed))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, ok := Parse("not-a-tag")
	assert.False(t, ok)

	_, ok = Parse("GGGG,0000")
	assert.False(t, ok)
}

func TestParseAcceptsParens(t *testing.T) {
	parsed, ok := Parse("(0008,0018)")
	assert.True(t, ok)
	assert.Equal(t, New(0x0008, 0x0018), parsed)
}

func TestPredicates(t *testing.T) {
	assert.True(t, New(0x0009, 0x0010).IsPrivate())
	assert.False(t, New(0x0008, 0x0010).IsPrivate())

	assert.True(t, New(0x0008, 0x0000).IsGroupLength())
	assert.False(t, New(0x0008, 0x0018).IsGroupLength())

	assert.True(t, New(0x0002, 0x0010).IsGroup0002())
	assert.False(t, New(0x0008, 0x0010).IsGroup0002())

	assert.True(t, Item.IsItemFamily())
	assert.True(t, ItemDelimitation.IsItemFamily())
	assert.True(t, SequenceDelimitation.IsItemFamily())
	assert.False(t, PixelData.IsItemFamily())
}
