package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ComputeDefinitionHash computes a deterministic hash of the set of labels a
// file defines. Order and duplicates do not affect the hash; neither do the
// lines the labels are defined on.
func ComputeDefinitionHash(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	h := sha256.New()
	var prev string
	for i, name := range sorted {
		if i > 0 && name == prev {
			continue
		}
		fmt.Fprintf(h, "def:%s\n", name)
		prev = name
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ChangedNames returns the names present in exactly one of before and
// after, sorted.
func ChangedNames(before, after []string) []string {
	inOld := make(map[string]bool, len(before))
	for _, n := range before {
		inOld[n] = true
	}
	inNew := make(map[string]bool, len(after))
	for _, n := range after {
		inNew[n] = true
	}
	var out []string
	for n := range inOld {
		if !inNew[n] {
			out = append(out, n)
		}
	}
	for n := range inNew {
		if !inOld[n] {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
