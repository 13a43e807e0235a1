package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

const keyPrefix = "search:"

// Key identifies one search response. Method and option order do not
// matter; the query is taken verbatim.
type Key struct {
	Query       string
	Aggregation string
	Methods     []string
	Options     []string
}

// String renders query|aggregation|methods|options with methods and
// options sorted and comma-joined.
func (k Key) String() string {
	return strings.Join([]string{
		k.Query,
		k.Aggregation,
		joinSorted(k.Methods),
		joinSorted(k.Options),
	}, "|")
}

// storageKey is the hashed form written to backends.
func (k Key) storageKey() string {
	hash := sha256.Sum256([]byte(k.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func joinSorted(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
