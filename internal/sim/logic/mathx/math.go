package mathx

func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// SatSub subtracts without wrapping below zero.
func SatSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SatAdd adds and clamps to max.
func SatAdd(a, b, max uint64) uint64 {
	if a >= max || b >= max-a {
		return max
	}
	return a + b
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash folds the salts into seed one word at a time.
func Hash(seed uint64, salts ...uint64) uint64 {
	v := mix64(seed)
	for i, s := range salts {
		v = mix64(v ^ (s * 0x9e3779b97f4a7c15) ^ (uint64(i+1) * 0xc2b2ae3d27d4eb4f))
	}
	return v
}
