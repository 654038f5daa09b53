// Package utils contains small helpers shared across the reconstruction packages.
package utils

// FilterSlice returns the elements of s whose corresponding keep entry is true,
// preserving relative order. It panics if the lengths differ.
func FilterSlice[T any](keep []bool, s []T) []T {
	if len(keep) != len(s) {
		panic("utils: keep mask length does not match slice length")
	}
	out := make([]T, 0, len(s))
	for i, k := range keep {
		if k {
			out = append(out, s[i])
		}
	}
	return out
}

// RemoveIndices returns s without the elements at the given indices,
// preserving the relative order of the survivors. Indices out of range are
// ignored; duplicates are harmless.
func RemoveIndices[T any](remove []int, s []T) []T {
	drop := make(map[int]struct{}, len(remove))
	for _, idx := range remove {
		drop[idx] = struct{}{}
	}
	out := make([]T, 0, len(s)-len(drop))
	for i, v := range s {
		if _, ok := drop[i]; !ok {
			out = append(out, v)
		}
	}
	return out
}
