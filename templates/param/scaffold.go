package main

// CountChars builds a character histogram of input. This problem's
// submission is never source code — the catalog treats the caller's
// parameter as a runtime argument to this fixed function instead of an
// overlay file (spec.md §4.2/§6.2).
func CountChars(input string) map[string]int {
	counts := make(map[string]int)
	for _, r := range input {
		counts[string(r)]++
	}
	return counts
}
