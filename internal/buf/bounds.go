package buf

// AddOverflowSafe adds a and b, returning ok = false when the result would
// overflow uintptr.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Within reports whether [addr, addr+n) lies inside [lo, hi).
func Within(lo, hi, addr, n uintptr) bool {
	if addr < lo {
		return false
	}
	end, ok := AddOverflowSafe(addr, n)
	if !ok {
		return false
	}
	return end <= hi
}
