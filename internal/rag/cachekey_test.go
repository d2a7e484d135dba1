package rag

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKeyNamespaceOnly(t *testing.T) {
	assert.Equal(t, "embedding", BuildKey("embedding", 0, nil, nil))
}

func TestBuildKeyIncludesUserWhenSet(t *testing.T) {
	key := BuildKey("search", 42, []interface{}{"where is the office"}, nil)
	assert.Equal(t, "search:user:42:where is the office", key)
}

func TestBuildKeySkipsZeroUser(t *testing.T) {
	key := BuildKey("doc_metadata", 0, []interface{}{"doc-7"}, nil)
	assert.Equal(t, "doc_metadata:doc-7", key)
}

func TestBuildKeyScalarsVerbatim(t *testing.T) {
	key := BuildKey("search", 1, []interface{}{"q"}, map[string]interface{}{
		"k":               10,
		"score_threshold": float32(0.7),
	})
	assert.Equal(t, "search:user:1:q:k:10:score_threshold:0.7", key)
}

func TestBuildKeyNamedArgsSorted(t *testing.T) {
	a := BuildKey("search", 1, nil, map[string]interface{}{"b": 2, "a": 1, "c": 3})
	b := BuildKey("search", 1, nil, map[string]interface{}{"c": 3, "a": 1, "b": 2})
	assert.Equal(t, a, b)
	assert.Equal(t, "search:user:1:a:1:b:2:c:3", a)
}

func TestBuildKeyDigestsNonScalars(t *testing.T) {
	filter := map[string]string{"department": "engineering"}
	key := BuildKey("search", 1, nil, map[string]interface{}{"filter": filter})

	assert.Regexp(t, regexp.MustCompile(`^search:user:1:filter:[0-9a-f]{8}$`), key)

	same := BuildKey("search", 1, nil, map[string]interface{}{"filter": map[string]string{"department": "engineering"}})
	assert.Equal(t, key, same)

	other := BuildKey("search", 1, nil, map[string]interface{}{"filter": map[string]string{"department": "sales"}})
	assert.NotEqual(t, key, other)
}
