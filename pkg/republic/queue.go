package republic

// fifo is a queue of node ids that holds each id at most once while it is
// pending. It is not safe for concurrent use; Engine.mu guards it.
type fifo struct {
	items   []string
	head    int
	pending map[string]struct{}
}

func newFIFO() *fifo {
	return &fifo{pending: make(map[string]struct{})}
}

// push appends id unless it is already pending.
func (q *fifo) push(id string) bool {
	if _, ok := q.pending[id]; ok {
		return false
	}
	q.pending[id] = struct{}{}
	q.items = append(q.items, id)
	return true
}

func (q *fifo) pop() (string, bool) {
	if q.head >= len(q.items) {
		return "", false
	}
	id := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	delete(q.pending, id)

	// compact once the consumed prefix dominates
	if q.head > 64 && q.head*2 >= len(q.items) {
		q.items = append([]string(nil), q.items[q.head:]...)
		q.head = 0
	}
	return id, true
}

func (q *fifo) len() int {
	return len(q.items) - q.head
}

func (q *fifo) snapshot() []string {
	return append([]string(nil), q.items[q.head:]...)
}

func (e *Engine) pop(c Caste) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues[c].pop()
}

// enqueueAllLocked queues id for every caste that has not examined it yet.
// Callers hold e.mu, which makes the examined check and the three pushes
// one step.
func (e *Engine) enqueueAllLocked(id string) {
	for _, c := range Castes {
		if _, done := e.examined[examinedKey{caste: c, id: id}]; done {
			continue
		}
		e.queues[c].push(id)
	}
}
