package gasoracle

import "math/big"

// ring keeps the last size values, evicting the oldest first.
type ring struct {
	buf   []*big.Int
	start int
	size  int
}

func newRing(size int) *ring {
	return &ring{buf: make([]*big.Int, 0, size), size: size}
}

func (r *ring) push(v *big.Int) {
	v = new(big.Int).Set(v)
	if len(r.buf) < r.size {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.size
}

// average is zero for an empty ring.
func (r *ring) average() *big.Int {
	sum := new(big.Int)
	if len(r.buf) == 0 {
		return sum
	}
	for _, v := range r.buf {
		sum.Add(sum, v)
	}
	return sum.Div(sum, big.NewInt(int64(len(r.buf))))
}

func (r *ring) values() []*big.Int {
	out := make([]*big.Int, 0, len(r.buf))
	for i := range r.buf {
		out = append(out, new(big.Int).Set(r.buf[(r.start+i)%len(r.buf)]))
	}
	return out
}
