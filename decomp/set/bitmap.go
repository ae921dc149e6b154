package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a set of instruction addresses.
	// The zero value is empty and ready to use.
	Bitmap struct {
		words []uint64
	}
)

// MakeBitmap returns a set sized for addresses below n.
func MakeBitmap(n int) Bitmap {
	return Bitmap{words: make([]uint64, (n+63)/64)}
}

func (s *Bitmap) Set(addr int) {
	w := addr / 64

	if w >= len(s.words) {
		s.words = append(s.words, make([]uint64, w+1-len(s.words))...)
	}

	s.words[w] |= 1 << (addr % 64)
}

// Add sets addr and reports whether it was new.
func (s *Bitmap) Add(addr int) bool {
	if s.IsSet(addr) {
		return false
	}

	s.Set(addr)

	return true
}

func (s *Bitmap) IsSet(addr int) bool {
	if addr < 0 || addr/64 >= len(s.words) {
		return false
	}

	return s.words[addr/64]&(1<<(addr%64)) != 0
}

func (s *Bitmap) Len() (n int) {
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}

	return n
}

// Slice returns addresses in increasing order.
func (s *Bitmap) Slice() []int {
	r := make([]int, 0, s.Len())

	for i, w := range s.words {
		for ; w != 0; w &= w - 1 {
			r = append(r, i*64+bits.TrailingZeros64(w))
		}
	}

	return r
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	l := s.Slice()

	b = e.AppendTag(b, tlwire.Array, len(l))

	for _, a := range l {
		b = e.AppendInt(b, a)
	}

	return b
}
