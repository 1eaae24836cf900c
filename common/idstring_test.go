package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIdStringStable(t *testing.T) {
	a := NewIdString("ShadowNode/Main")
	b := NewIdString("ShadowNode/Main")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewIdString("ShadowNode/Other"))
	assert.Equal(t, "ShadowNode/Main", a.String())
}

func TestBlankIdString(t *testing.T) {
	assert.Equal(t, BlankIdString, NewIdString(""))
	assert.True(t, NewIdString("").IsBlank())
	assert.Equal(t, "", BlankIdString.String())
}

func TestIdStringCombine(t *testing.T) {
	a := NewIdString("a")
	b := NewIdString("b")
	assert.Equal(t, a.Combine(b), a.Combine(b))
	assert.NotEqual(t, a.Combine(b), b.Combine(a))
	assert.Contains(t, a.Combine(b).String(), "Hash 0x")
}

func TestIdStringCollisionPanics(t *testing.T) {
	id := NewIdString("collision-probe")
	assert.Panics(t, func() { registerIdString(id, "not the same name") })
	assert.NotPanics(t, func() { registerIdString(id, "collision-probe") })
}
