// Package testdiff gives test failures a readable diff instead of a
// raw %+v dump of two struct values.
//
// Adapted from the teacher's internal/test/diff.go, generalized from a
// vendor-directory-local helper to one importable by every package's
// tests here.
package testdiff

import (
	"github.com/d4l3k/messagediff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff compares two values, returning a human-readable description of
// their differences and whether they are equal. Strings get a
// character-level diff; everything else gets a struct-field diff.
func Diff(a, b interface{}) (diff string, equal bool) {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		dmp := diffmatchpatch.New()
		d := dmp.DiffMain(as, bs, false)
		return dmp.DiffPrettyText(d), as == bs
	}
	return messagediff.PrettyDiff(a, b)
}
