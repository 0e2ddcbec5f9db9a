package central

import "github.com/bit-cook/ZSWatch/internal/ble"

// DefaultRegistryCapacity is the number of peripherals one scan session lists.
const DefaultRegistryCapacity = 5

// registry is the ordered, bounded list of peripherals found by the current
// scan session. An entry's index is its handle for Connect until the next
// reset.
type registry struct {
	capacity int
	entries  []Peripheral
}

func newRegistry(capacity int) *registry {
	if capacity <= 0 {
		capacity = DefaultRegistryCapacity
	}
	return &registry{capacity: capacity, entries: make([]Peripheral, 0, capacity)}
}

func (r *registry) reset() {
	r.entries = r.entries[:0]
}

// add appends p. Overflow drops p and keeps the existing entries.
func (r *registry) add(p Peripheral) (int, error) {
	if r.contains(p.Address) {
		return -1, errDuplicate
	}
	if len(r.entries) >= r.capacity {
		return -1, ErrRegistryFull
	}
	r.entries = append(r.entries, p)
	return len(r.entries) - 1, nil
}

func (r *registry) contains(addr ble.Address) bool {
	for _, e := range r.entries {
		if e.Address == addr {
			return true
		}
	}
	return false
}

func (r *registry) get(index int) (Peripheral, error) {
	if index < 0 || index >= len(r.entries) {
		return Peripheral{}, ErrInvalidIndex
	}
	return r.entries[index], nil
}

func (r *registry) len() int {
	return len(r.entries)
}

func (r *registry) snapshot() []Peripheral {
	out := make([]Peripheral, len(r.entries))
	copy(out, r.entries)
	return out
}
