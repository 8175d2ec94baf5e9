package notify

import (
	"maps"
	"sync"
	"time"

	"chatline/models"
)

// Snapshot is a point-in-time copy of the unread counters.
type Snapshot struct {
	Total         int
	Conversations map[string]int
	Active        models.ID
	LastUpdated   time.Time
}

// Count returns the unread count for one conversation.
func (s Snapshot) Count(id models.ID) int {
	return s.Conversations[id.String()]
}

// Counts holds unread counters per conversation plus a total. Counters never
// go negative and zero entries are dropped.
type Counts struct {
	mu          sync.Mutex
	total       int
	byConv      map[string]int
	active      models.ID
	lastUpdated time.Time
	now         func() time.Time

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Snapshot
}

// NewCounts returns an empty store.
func NewCounts() *Counts {
	return &Counts{
		byConv: map[string]int{},
		now:    time.Now,
		subs:   map[int]chan Snapshot{},
	}
}

// SetTotal overrides the total without touching per-conversation counters.
func (c *Counts) SetTotal(total int) {
	c.update(func() {
		c.total = max(0, total)
	})
}

// SetConversation sets one counter and recomputes the total from all counters.
func (c *Counts) SetConversation(id models.ID, count int) {
	c.update(func() {
		if count > 0 {
			c.byConv[id.String()] = count
		} else {
			delete(c.byConv, id.String())
		}
		c.total = sum(c.byConv)
	})
}

// Increment adds n to a conversation and to the total.
func (c *Counts) Increment(id models.ID, n int) {
	if n <= 0 {
		return
	}
	c.update(func() {
		c.byConv[id.String()] += n
		c.total += n
	})
}

// Decrement subtracts n from a conversation and from the total, flooring at zero.
func (c *Counts) Decrement(id models.ID, n int) {
	if n <= 0 {
		return
	}
	c.update(func() {
		key := id.String()
		if next := c.byConv[key] - n; next > 0 {
			c.byConv[key] = next
		} else {
			delete(c.byConv, key)
		}
		c.total = max(0, c.total-n)
	})
}

// Reset zeroes one conversation and takes its count off the total.
func (c *Counts) Reset(id models.ID) {
	c.update(func() {
		c.dropLocked(id)
	})
}

// ReplaceAll swaps in a full counter map and recomputes the total.
func (c *Counts) ReplaceAll(counts map[string]int) {
	c.update(func() {
		c.byConv = positive(counts)
		c.total = sum(c.byConv)
	})
}

// ApplyPush takes a server push. While a conversation is open its counter is
// dropped and the total recomputed; otherwise the server total is used as is.
func (c *Counts) ApplyPush(counts models.NotificationCounts) {
	c.update(func() {
		next := positive(counts.ConversationCounts)
		if c.active != "" {
			delete(next, c.active.String())
			c.byConv = next
			c.total = sum(next)
			return
		}
		c.byConv = next
		c.total = max(0, counts.TotalUnreadCount)
	})
}

// ApplyFetched takes the REST counts verbatim.
func (c *Counts) ApplyFetched(counts models.NotificationCounts) {
	c.update(func() {
		c.byConv = positive(counts.ConversationCounts)
		c.total = max(0, counts.TotalUnreadCount)
	})
}

// SetActive marks a conversation as open and clears its counter.
func (c *Counts) SetActive(id models.ID) {
	c.mu.Lock()
	c.active = id
	_, has := c.byConv[id.String()]
	c.mu.Unlock()

	if id != "" && has {
		c.update(func() {
			c.dropLocked(id)
		})
	}
}

// ClearActive forgets the open conversation.
func (c *Counts) ClearActive() {
	c.mu.Lock()
	c.active = ""
	c.mu.Unlock()
}

// Active returns the open conversation, if any.
func (c *Counts) Active() models.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ResetAll returns the store to its initial empty state.
func (c *Counts) ResetAll() {
	c.mu.Lock()
	c.total = 0
	c.byConv = map[string]int{}
	c.active = ""
	c.lastUpdated = time.Time{}
	c.publishLocked()
	c.mu.Unlock()
}

// Snapshot copies the current state.
func (c *Counts) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Total returns the total unread count.
func (c *Counts) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Count returns one conversation's unread count.
func (c *Counts) Count(id models.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byConv[id.String()]
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only see the newest value. Call cancel to stop.
func (c *Counts) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (c *Counts) update(fn func()) {
	c.mu.Lock()
	fn()
	c.lastUpdated = c.now()
	c.publishLocked()
	c.mu.Unlock()
}

func (c *Counts) dropLocked(id models.ID) {
	key := id.String()
	prev := c.byConv[key]
	delete(c.byConv, key)
	c.total = max(0, c.total-prev)
}

func (c *Counts) snapshotLocked() Snapshot {
	return Snapshot{
		Total:         c.total,
		Conversations: maps.Clone(c.byConv),
		Active:        c.active,
		LastUpdated:   c.lastUpdated,
	}
}

// publishLocked runs under c.mu so subscribers see snapshots in update order.
func (c *Counts) publishLocked() {
	snap := c.snapshotLocked()
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func positive(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func sum(counts map[string]int) int {
	total := 0
	for _, v := range counts {
		total += v
	}
	return total
}
