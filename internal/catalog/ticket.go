package catalog

import "sync"

// Tickets guards asynchronous results against staleness. A consumer (e.g.
// the properties panel of one node) issues a ticket before fetching and
// checks it before applying the result; closing or re-opening the consumer
// revokes every earlier ticket. Only consumers with an outstanding ticket
// are tracked.
type Tickets struct {
	mu      sync.Mutex
	seq     uint64
	current map[string]uint64
}

// Ticket identifies one outstanding request of a consumer.
type Ticket struct {
	owner    *Tickets
	consumer string
	seq      uint64
}

// NewTickets creates an empty ticket registry.
func NewTickets() *Tickets {
	return &Tickets{current: make(map[string]uint64)}
}

// Issue supersedes every earlier ticket of consumer and returns a new one.
func (t *Tickets) Issue(consumer string) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.current[consumer] = t.seq
	return Ticket{owner: t, consumer: consumer, seq: t.seq}
}

// Revoke invalidates every outstanding ticket of consumer and forgets it.
// Sequence numbers are never reused, so a later Issue cannot revive a
// revoked ticket.
func (t *Tickets) Revoke(consumer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, consumer)
}

// Len returns the number of consumers with an outstanding ticket.
func (t *Tickets) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.current)
}

// Valid reports whether the ticket is still the latest of its consumer.
func (k Ticket) Valid() bool {
	if k.owner == nil {
		return false
	}
	k.owner.mu.Lock()
	defer k.owner.mu.Unlock()
	seq, ok := k.owner.current[k.consumer]
	return ok && seq == k.seq
}

// Consumer returns the consumer the ticket was issued to.
func (k Ticket) Consumer() string { return k.consumer }
