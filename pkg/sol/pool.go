package sol

import (
	"errors"

	"github.com/zeebo/blake3"
)

var errPoolExhausted = errors.New("unable to evict any document, cache is full")

type digest [32]byte

func digestOf(data []byte) digest {
	return blake3.Sum256(data)
}

// slot holds one cached file. digest is the hash of the bytes last
// read from or written to disk.
type slot struct {
	name       string
	file       *File
	digest     digest
	onDisk     bool
	referenced bool
	dirty      bool
	used       bool
}

func nextHandIndex(current, capacity int) int {
	if current+1 >= capacity {
		return 0
	}

	return current + 1
}

// clockPool replaces cached documents with the clock algorithm: the hand
// sweeps the slots and takes the first one whose reference bit is clear,
// clearing the bits it passes. Callers serialize access.
type clockPool struct {
	addresses map[string]*slot
	slots     []slot
	hand      int
}

func newClockPool(capacity int) *clockPool {
	return &clockPool{
		addresses: make(map[string]*slot, capacity),
		slots:     make([]slot, capacity),
	}
}

func (cp *clockPool) get(name string) (*slot, bool) {
	s, ok := cp.addresses[name]
	if !ok {
		return nil, false
	}

	s.referenced = true
	return s, true
}

// allocate binds a slot to name. flush is called with a dirty victim
// before the slot is reused, an error leaves the victim cached.
func (cp *clockPool) allocate(name string, flush func(s *slot) error) (*slot, error) {
	if s, ok := cp.addresses[name]; ok {
		s.referenced = true
		return s, nil
	}

	victim, err := cp.evict()
	if err != nil {
		return nil, err
	}

	if victim.used {
		if victim.dirty {
			if err := flush(victim); err != nil {
				return nil, err
			}
		}
		delete(cp.addresses, victim.name)
	}

	*victim = slot{name: name, referenced: true, used: true}
	cp.addresses[name] = victim
	return victim, nil
}

func (cp *clockPool) remove(name string) {
	s, ok := cp.addresses[name]
	if !ok {
		return
	}

	delete(cp.addresses, name)
	*s = slot{}
}

func (cp *clockPool) visit(f func(s *slot) error) error {
	for _, s := range cp.addresses {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

func (cp *clockPool) evict() (*slot, error) {
	for i := 0; i < len(cp.slots)*2; i++ {
		s := &cp.slots[cp.hand]
		cp.hand = nextHandIndex(cp.hand, len(cp.slots))

		if !s.used {
			return s, nil
		}
		if s.referenced {
			s.referenced = false
			continue
		}
		return s, nil
	}

	return nil, errPoolExhausted
}
