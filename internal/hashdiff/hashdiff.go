// Package hashdiff computes the change-detection digest stored with every version.
//
// The digest is the lowercase hex SHA-256 of a canonical JSON object built from
// the normalised business attributes. Keys are sorted and nil values dropped, so
// a missing attribute and an explicit nil hash the same.
package hashdiff

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Policy controls how a string attribute is normalised before hashing.
type Policy int

const (
	Exact Policy = iota
	Trimmed
	CaseInsensitive
)

// Fields maps attribute names to values.
type Fields map[string]any

// Schema declares the normalisation policy per attribute. Attributes missing
// from the schema are hashed with Exact.
type Schema map[string]Policy

var (
	EntitySchema = Schema{"entity_type": Exact, "display_name": CaseInsensitive}
	DetailSchema = Schema{"detail_type": Exact, "detail_value": CaseInsensitive}
)

// Size is the length of an encoded digest.
const Size = sha256.Size * 2

// Compute hashes fields with every attribute treated as Exact.
func Compute(fields Fields) string {
	return Schema(nil).Compute(fields)
}

// Compute hashes fields under the schema's normalisation rules.
func (s Schema) Compute(fields Fields) string {
	canon := make(map[string]any, len(fields))
	for k, v := range fields {
		n := normalize(s[k], v)
		if n == nil {
			continue
		}
		canon[k] = n
	}
	// json.Marshal sorts map keys; values here are strings or plain scalars.
	data, err := json.Marshal(canon)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", canon))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalize(p Policy, v any) any {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case *string:
		if t == nil {
			return nil
		}
		s = *t
	case fmt.Stringer:
		s = t.String()
	default:
		return v
	}
	switch p {
	case Trimmed:
		return strings.TrimSpace(s)
	case CaseInsensitive:
		return strings.ToLower(strings.TrimSpace(s))
	}
	return s
}

// Entity is the digest of an entity version's attributes.
func Entity(entityType, displayName string) string {
	return EntitySchema.Compute(Fields{"entity_type": entityType, "display_name": displayName})
}

// Detail is the digest of a detail version's attributes.
func Detail(detailType, detailValue string) string {
	return DetailSchema.Compute(Fields{"detail_type": detailType, "detail_value": detailValue})
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Valid reports whether s looks like a digest produced by Compute.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}
