package dwarfindex

import "testing"

func TestSipHashDeterministic(t *testing.T) {
	h1 := newSipHash()
	h1.write([]byte("hello"))
	h1.writeByte('/')
	h1.write([]byte("world"))

	h2 := newSipHash()
	h2.write([]byte("hello"))
	h2.writeByte('/')
	h2.write([]byte("world"))

	if h1.sum64() != h2.sum64() {
		t.Fatalf("identical input sequences produced different sums")
	}
}

func TestSipHashDiffersOnDifferentInput(t *testing.T) {
	h1 := newSipHash()
	h1.write([]byte("abc"))

	h2 := newSipHash()
	h2.write([]byte("abd"))

	if h1.sum64() == h2.sum64() {
		t.Fatalf("distinct inputs hashed to the same sum")
	}
}

func TestSipHashBlockBoundaryBuffering(t *testing.T) {
	// Feeding 9 bytes in one call must equal feeding them split 3/6 across
	// two write() calls, exercising the partial-block carry path.
	h1 := newSipHash()
	h1.write([]byte("abcdefghi"))

	h2 := newSipHash()
	h2.write([]byte("abc"))
	h2.write([]byte("defghi"))

	if h1.sum64() != h2.sum64() {
		t.Fatalf("splitting writes across the 8-byte block boundary changed the result")
	}
}

func TestHashFileNameCombinesDirAndName(t *testing.T) {
	a := hashFileName("/usr/include", "stdio.h")
	b := hashFileName("/usr/include", "stdlib.h")

	if a == b {
		t.Fatalf("different file names under the same directory hashed equal")
	}

	c := hashFileName("/usr/include/../include", "stdio.h")
	if a != c {
		t.Fatalf("path-equivalent directories produced different file hashes")
	}
}
