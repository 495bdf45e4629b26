package ws

// Mask XORs data in place with key repeated, per RFC 6455 §5.3. Masking is
// its own inverse: Mask(key, Mask(key, p)) == p for any key and p.
func Mask(key [4]byte, data []byte) {
	for i := range data {
		data[i] ^= key[i%4]
	}
}
