package enums

import (
	"fmt"
	"slices"
)

// parse converts raw into a member of allowed, naming kind in the error.
func parse[T ~string](kind string, allowed []T, raw string) (T, error) {
	if v := T(raw); slices.Contains(allowed, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
