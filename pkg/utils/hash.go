package utils

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
)

// ShortHash returns the first 8 hex characters of the md5 digest.
// Used for compacting non-scalar cache key components; not cryptographic.
func ShortHash(input []byte) string {
	hash := md5.Sum(input)
	return fmt.Sprintf("%x", hash)[:8]
}

// CanonicalDigest hashes a value through its canonical JSON form.
// encoding/json sorts map keys, so equal mappings hash equally.
func CanonicalDigest(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ShortHash([]byte(fmt.Sprintf("%v", v)))
	}
	return ShortHash(data)
}
