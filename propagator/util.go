package propagator

import "path"

// parentDir returns the normalised parent directory of p, the input to the
// ancestor jhash64 lookup (spec.md §3 Invariants, §9 Design Notes).
func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
