package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestFilterSlice(t *testing.T) {
	s := []int{10, 20, 30, 40}
	test.That(t, FilterSlice([]bool{true, false, false, true}, s), test.ShouldResemble, []int{10, 40})
	test.That(t, FilterSlice([]bool{false, false, false, false}, s), test.ShouldResemble, []int{})
	test.That(t, FilterSlice([]bool{true, true, true, true}, s), test.ShouldResemble, s)
	test.That(t, func() { FilterSlice([]bool{true}, s) }, test.ShouldPanic)
}

func TestRemoveIndices(t *testing.T) {
	s := []string{"a", "b", "c", "d"}
	test.That(t, RemoveIndices([]int{1, 3}, s), test.ShouldResemble, []string{"a", "c"})
	test.That(t, RemoveIndices(nil, s), test.ShouldResemble, s)
	// out-of-range and duplicate indices are ignored
	test.That(t, RemoveIndices([]int{0, 0, 9}, s), test.ShouldResemble, []string{"b", "c", "d"})
}
