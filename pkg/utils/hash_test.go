package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortHashLengthAndDeterminism(t *testing.T) {
	a := ShortHash([]byte("hello"))
	b := ShortHash([]byte("hello"))
	assert.Len(t, a, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ShortHash([]byte("world")))
}

func TestCanonicalDigestMapOrderIndependent(t *testing.T) {
	a := CanonicalDigest(map[string]string{"a": "1", "b": "2"})
	b := CanonicalDigest(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}
