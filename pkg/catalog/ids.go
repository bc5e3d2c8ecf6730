package catalog

import (
	"strconv"
)

// LessID orders identifiers numerically when both parse as integers, which
// matches ORDER BY id in SQL and ORDER BY toInteger(id) in Cypher.
func LessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	if aerr == nil {
		return true
	}
	if berr == nil {
		return false
	}
	return a < b
}

// ParseID converts an identifier to the relational key type. ok is false
// for identifiers that cannot exist in the relational store.
func ParseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
