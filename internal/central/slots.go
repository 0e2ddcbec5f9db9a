package central

import (
	"context"
	"sync"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// link is the handle of one connect attempt. It is owned by exactly one
// slot until taken out; events carry it so they can be matched against the
// slots. All fields except done are touched only by the event loop.
type link struct {
	id       uint64
	category Category
	address  ble.Address
	name     string
	cancel   context.CancelFunc

	conn       ble.Connection
	discovered bool
	// deliver is the category client's notification handler.
	deliver  func([]byte)
	lost     bool
	released bool
	// dialed is set once the connect result reached the loop.
	dialed bool

	// done is closed once the handle holds no radio link: the dial failed,
	// the peer dropped it, or Disconnect returned.
	done     chan struct{}
	doneOnce sync.Once
}

func (l *link) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

type slot struct {
	state SlotState
	link  *link
}

// slotTable holds one slot per category.
type slotTable [NumCategories]slot

func (t *slotTable) occupy(c Category, l *link) {
	t[c] = slot{state: SlotConnecting, link: l}
}

// take moves the handle out of c's slot and clears it. It returns nil for
// an empty slot.
func (t *slotTable) take(c Category) *link {
	l := t[c].link
	t[c] = slot{}
	return l
}

// find returns the category whose slot owns l.
func (t *slotTable) find(l *link) (Category, bool) {
	for i := range t {
		if t[i].link == l && l != nil {
			return Category(i), true
		}
	}
	return 0, false
}
