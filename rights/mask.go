package rights

// Mask is a 64-bit set of right indices.
type Mask uint64

// Has reports whether bit is set.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxRights {
		return false
	}
	return m&(1<<bit) != 0
}

// Set returns m with bit set.
func (m Mask) Set(bit int) Mask {
	if bit < 0 || bit >= MaxRights {
		return m
	}
	return m | (1 << bit)
}

// Contains reports whether every bit of other is also set in m.
func (m Mask) Contains(other Mask) bool {
	return m&other == other
}
