package hashslot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotNoTag(t *testing.T) {
	assert.EqualValues(t, CRC16([]byte("foo"))%NumSlots, Slot("foo"))
	assert.EqualValues(t, CRC16([]byte("somekey"))%NumSlots, Slot("somekey"))
}

func TestSlotSharedTag(t *testing.T) {
	a := Slot("a{tag}b")
	b := Slot("c{tag}d")
	assert.Equal(t, a, b)
	assert.Equal(t, Slot("{tag}"), a)
	assert.Equal(t, Slot("tag"), a)
}

func TestSlotTagOrderingRequiresOpenBeforeClose(t *testing.T) {
	// '}' appears before '{': the whole key hashes, not "user1000"
	key := "}user1000{"
	assert.Equal(t, Slot(key), CRC16([]byte(key))%NumSlots)
}

func TestEmptyTagHashesEmptyString(t *testing.T) {
	assert.Equal(t, Slot("{}key"), CRC16([]byte(""))%NumSlots)
}

func TestHashTagExtraction(t *testing.T) {
	tag, ok := HashTag("foo{bar}baz")
	assert.True(t, ok)
	assert.Equal(t, "bar", tag)

	_, ok = HashTag("foobarbaz")
	assert.False(t, ok)

	tag, ok = HashTag("{}key")
	assert.True(t, ok)
	assert.Equal(t, "", tag)

	tag, ok = HashTag("a{b{c}d")
	assert.True(t, ok)
	assert.Equal(t, "b{c", tag)
}
