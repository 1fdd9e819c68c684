package pty

// incompleteUTF8Tail returns how many trailing bytes of data form the start of
// a multi-byte UTF-8 sequence that has not been fully read yet.
func incompleteUTF8Tail(data []byte) int {
	n := len(data)
	if n == 0 || data[n-1] < 0x80 {
		return 0
	}
	for i := 0; i < 4 && i < n; i++ {
		b := data[n-1-i]
		if b&0xC0 == 0x80 {
			continue
		}
		var seqLen int
		switch {
		case b&0xE0 == 0xC0:
			seqLen = 2
		case b&0xF0 == 0xE0:
			seqLen = 3
		case b&0xF8 == 0xF0:
			seqLen = 4
		default:
			return 0
		}
		if have := i + 1; have < seqLen {
			return have
		}
		return 0
	}
	return 0
}
