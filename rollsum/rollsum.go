// Package rollsum implements the weak rolling checksum used to scan a
// local file for blocks of a remote file at arbitrary byte offsets.
//
// The checksum is the classic rsync pair of 16-bit accumulators: a plain
// byte sum and a position-weighted sum, combined into a 32-bit digest.
// Seeding a window and then rotating it byte by byte produces the same
// digest as re-seeding at every position, which is what makes a full-file
// scan O(bytes) instead of O(bytes * blocksize).
package rollsum

const _M = 1 << 16

// Checksum is a weak rolling hash over a window of up to blocksize bytes.
// The zero value is an empty checksum.
type Checksum struct {
	a, b   uint32
	window int
}

// Update seeds the checksum with a whole window, replacing any previous
// state. The window may be shorter than the block size (final block).
func (c *Checksum) Update(buf []byte) {
	c.a = 0
	c.b = 0
	for i, v := range buf {
		c.a += uint32(v)
		c.b += uint32(len(buf)-i) * uint32(v)
	}
	c.window = len(buf)
}

// Rotate slides the window forward by one byte, removing out from the
// head and appending in at the tail. Only valid on a seeded, full-size
// window; the caller re-seeds with Update when the window shrinks at the
// end of the file.
func (c *Checksum) Rotate(out, in byte) {
	c.a += uint32(in) - uint32(out)
	c.b += c.a - uint32(c.window)*uint32(out)
}

// Digest returns the combined 32-bit checksum of the current window.
func (c *Checksum) Digest() uint32 {
	return (c.a % _M) | (c.b%_M)<<16
}

// Clear returns the checksum to its empty state. The next Update
// re-seeds it; this is how the scanner restarts after a block match.
func (c *Checksum) Clear() {
	c.a = 0
	c.b = 0
	c.window = 0
}

// IsEmpty reports whether the checksum holds no window.
func (c *Checksum) IsEmpty() bool {
	return c.window == 0
}

// WindowSize returns the length of the current window, 0 when empty.
func (c *Checksum) WindowSize() int {
	return c.window
}

// Sum is a convenience for computing the digest of a single block
// without keeping rolling state.
func Sum(buf []byte) uint32 {
	var c Checksum
	c.Update(buf)
	return c.Digest()
}
