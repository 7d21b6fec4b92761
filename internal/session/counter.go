package session

// Counter hands out sequence numbers 0, 1, 2, ... in observation order.
type Counter struct {
	next uint64
}

// Next returns the sequence for a newly observed event.
func (c *Counter) Next() uint64 {
	n := c.next
	c.next++
	return n
}

// Last returns the most recently issued sequence.
func (c *Counter) Last() (uint64, bool) {
	if c.next == 0 {
		return 0, false
	}
	return c.next - 1, true
}

// Observed returns how many sequences have been issued.
func (c *Counter) Observed() uint64 {
	return c.next
}

// Repoint makes seq the most recently issued sequence, so the next call to
// Next returns seq+1.
func (c *Counter) Repoint(seq uint64) {
	c.next = seq + 1
}

// Counters are the per-endpoint sequence spaces. Sender uses Raw/Encoded,
// receiver uses Received/Decoded.
type Counters struct {
	Raw      Counter
	Encoded  Counter
	Received Counter
	Decoded  Counter
}
