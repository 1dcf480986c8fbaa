package dwarfindex

// SipHash-2-4 (Aumasson & Bernstein), used here purely as a canonicalizing
// fingerprint for line-program directory/file paths — not as a
// collision-resistant MAC, so a fixed zero key is used throughout.
//
// No third-party SipHash implementation appears anywhere in this module's
// dependency surface (see DESIGN.md); this is the reference construction.

type sipHash struct {
	v0, v1, v2, v3 uint64
	buf            [8]byte
	buflen         int
	msglen         uint8 // low byte of total length, per the reference finalization
}

func newSipHash() *sipHash {
	h := &sipHash{
		v0: 0x736f6d6570736575,
		v1: 0x646f72616e646f6d,
		v2: 0x6c7967656e657261,
		v3: 0x7465646279746573,
	}

	return h
}

func rotl(x uint64, b uint) uint64 {
	return (x << b) | (x >> (64 - b))
}

func (h *sipHash) round() {
	h.v0 += h.v1
	h.v1 = rotl(h.v1, 13)
	h.v1 ^= h.v0
	h.v0 = rotl(h.v0, 32)
	h.v2 += h.v3
	h.v3 = rotl(h.v3, 16)
	h.v3 ^= h.v2
	h.v0 += h.v3
	h.v3 = rotl(h.v3, 21)
	h.v3 ^= h.v0
	h.v2 += h.v1
	h.v1 = rotl(h.v1, 17)
	h.v1 ^= h.v2
	h.v2 = rotl(h.v2, 32)
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}

	return v
}

// write feeds arbitrary bytes into the running hash state, buffering a
// partial 8-byte block across calls so callers can feed path components
// incrementally (as hashDirectory's reverse scan does).
func (h *sipHash) write(p []byte) {
	h.msglen += uint8(len(p))

	for len(p) > 0 {
		n := 8 - h.buflen
		if n > len(p) {
			n = len(p)
		}

		copy(h.buf[h.buflen:], p[:n])
		h.buflen += n
		p = p[n:]

		if h.buflen == 8 {
			m := le64(h.buf[:])
			h.v3 ^= m
			h.round()
			h.round()
			h.v0 ^= m
			h.buflen = 0
		}
	}
}

func (h *sipHash) writeByte(b byte) {
	h.write([]byte{b})
}

// sum64 finalizes the hash. The last (partial) block is padded with zero
// bytes and the total input length modulo 256 in its top byte, per the
// reference SipHash finalization.
func (h *sipHash) sum64() uint64 {
	var last [8]byte
	copy(last[:], h.buf[:h.buflen])
	last[7] = h.msglen

	m := le64(last[:])
	h.v3 ^= m
	h.round()
	h.round()
	h.v0 ^= m

	h.v2 ^= 0xff
	h.round()
	h.round()
	h.round()
	h.round()

	return h.v0 ^ h.v1 ^ h.v2 ^ h.v3
}

// hashDirectory canonicalizes path by a single right-to-left scan — skipping
// "." components, cancelling ".." against a preceding ordinary component,
// and counting leftover ".." — and feeds the canonical form into h in
// reverse order (components closest to the leaf first). This produces the
// same fingerprint for any two paths that denote the same location, without
// ever materializing the canonical string.
//
// Supplemented from drgn's hash_directory (original_source/drgn), which
// spec.md's prose summary does not spell out to this level of detail.
func hashDirectory(h *sipHash, path string) {
	i := len(path)
	pendingDotDot := 0

	for i > 0 {
		for i > 0 && path[i-1] == '/' {
			i--
		}

		end := i

		for i > 0 && path[i-1] != '/' {
			i--
		}

		comp := path[i:end]

		switch comp {
		case "":
			continue
		case ".":
			continue
		case "..":
			pendingDotDot++
		default:
			if pendingDotDot > 0 {
				pendingDotDot--

				continue
			}

			h.write([]byte(comp))
			h.writeByte('/')
		}
	}

	if len(path) > 0 && path[0] == '/' {
		h.writeByte('/')
	} else {
		for ; pendingDotDot > 0; pendingDotDot-- {
			h.write([]byte(".."))
			h.writeByte('/')
		}
	}
}

// hashFileName produces the canonical fingerprint for one line-program
// file-name-table entry: the directory's canonical hash continued with the
// file's own base name.
func hashFileName(dir, name string) uint64 {
	h := newSipHash()

	hashDirectory(h, dir)
	h.write([]byte(name))

	return h.sum64()
}
