package cache

// Prefix namespaces cache keys by subject kind.
type Prefix string

const (
	// PrefixUser keys user aggregations.
	PrefixUser Prefix = "gp"

	// PrefixPlace keys single place lookups.
	PrefixPlace Prefix = "gpp"
)

// Key builds the cache key for a subject.
// Format: <prefix>:<subject>
//
// Example:
//
//	gp:123456
func Key(prefix Prefix, subject string) string {
	return string(prefix) + ":" + subject
}
