package gate

// IsValidMask reports whether mask is structurally well formed: non-negative
// with no two adjacent bits set.
func IsValidMask(mask int64) bool {
	return mask >= 0 && mask&(mask>>1) == 0
}
