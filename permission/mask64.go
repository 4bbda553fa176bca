package permission

// Mask64 is a permission bitset. Bit positions come from a Registry.
type Mask64 uint64

func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<uint(bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= 1 << uint(bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= 1 << uint(bit)
}

// Covers reports whether every bit of other is set in m.
func (m Mask64) Covers(other Mask64) bool {
	return m&other == other
}
