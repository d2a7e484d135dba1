package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onboard-agent/backend/pkg/utils"
)

// BuildKey constructs a deterministic cache key: namespace, then
// user:<id> if set, then positional arguments, then named arguments in
// sorted order, colon-joined. Scalars go in verbatim; anything else is
// canonicalized to JSON and reduced to a short digest.
func BuildKey(namespace string, userID int64, args []interface{}, named map[string]interface{}) string {
	parts := []string{namespace}

	if userID > 0 {
		parts = append(parts, fmt.Sprintf("user:%d", userID))
	}

	for _, arg := range args {
		parts = append(parts, renderValue(arg))
	}

	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s:%s", name, renderValue(named[name])))
	}

	return strings.Join(parts, ":")
}

func renderValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", val)
	case float32:
		return fmt.Sprintf("%g", val)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return utils.CanonicalDigest(v)
	}
}
