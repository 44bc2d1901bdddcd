package permission

// Mask64 is a 64-bit permission allow-set. Bit positions correspond to
// [Permission] values; the highest bit is reserved for [Root].
type Mask64 uint64

// Has reports whether the mask grants p. A mask holding the root bit
// grants every permission.
func (m Mask64) Has(p Permission) bool {
	if p < 0 || int(p) >= 64 {
		return false
	}

	// root bit = highest bit
	if m&(1<<rootBit) != 0 {
		return true
	}

	return m&(1<<p) != 0
}

// Set returns a copy of the mask with p granted.
func (m Mask64) Set(p Permission) Mask64 {
	if p < 0 || int(p) >= 64 {
		return m
	}
	return m | (1 << p)
}

// Clear returns a copy of the mask with p withdrawn. Clearing a specific
// permission from a root mask has no observable effect on Has.
func (m Mask64) Clear(p Permission) Mask64 {
	if p < 0 || int(p) >= 64 {
		return m
	}
	return m &^ (1 << p)
}

// IsRoot reports whether the mask carries the reserved root bit.
func (m Mask64) IsRoot() bool {
	return m&(1<<rootBit) != 0
}

// Raw returns the underlying bit pattern.
func (m Mask64) Raw() uint64 {
	return uint64(m)
}

func maskOf(perms ...Permission) Mask64 {
	var m Mask64
	for _, p := range perms {
		m = m.Set(p)
	}
	return m
}
