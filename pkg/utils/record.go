package utils

import (
	"fmt"
	"slices"
	"strings"

	"github.com/oarkflow/convert"
)

type Record = map[string]any

// CloneRecord returns a shallow copy so transformers never mutate the
// record a source still holds.
func CloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// GetString reads key as text. Byte slices are converted directly; other
// values go through convert.
func GetString(rec Record, key string) (string, bool) {
	val, ok := rec[key]
	if !ok || val == nil {
		return "", false
	}
	switch v := val.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	if s, ok := convert.ToString(val); ok {
		return s, true
	}
	return fmt.Sprintf("%v", val), true
}

// SortedKeys returns the record keys in lexical order.
func SortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var sqlTypes = []string{"mysql", "mariadb", "postgresql", "postgres"}

func IsSQLType(typ string) bool {
	return slices.Contains(sqlTypes, strings.ToLower(typ))
}
