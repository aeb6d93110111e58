package wire

// DefaultCipherPattern is the fixed 4-byte XOR pattern every client starts
// with before any login-derived seed is issued.
var DefaultCipherPattern = [4]byte{0xCB, 0x91, 0x01, 0xA2}

// Cipher holds one client's rotating 4-byte XOR seed. The same operation
// both encrypts and decrypts, so a single Apply serves both directions.
type Cipher struct {
	seed [4]byte
}

// NewCipher returns a cipher seeded with the fixed default pattern, the
// state every new connection starts in.
func NewCipher() *Cipher {
	return &Cipher{seed: DefaultCipherPattern}
}

// SetSeed rotates the cipher to a new per-client code. The lobby director
// does this on login-OK.
func (c *Cipher) SetSeed(seed [4]byte) {
	c.seed = seed
}

// Reset restores the fixed default pattern.
func (c *Cipher) Reset() {
	c.seed = DefaultCipherPattern
}

// Apply XORs buf in place against the repeating seed, indexed by position
// modulo 4.
func (c *Cipher) Apply(buf []byte) {
	for i := range buf {
		buf[i] ^= c.seed[i%4]
	}
}
