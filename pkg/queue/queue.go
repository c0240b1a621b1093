// Package queue holds the ordered list of pending transaction ids and the
// pointer to the one under review.
package queue

// Queue keeps ids in arrival order. The zero value is an empty queue.
// While non-empty the pointer is always a valid index.
type Queue struct {
	ids     []string
	current int
}

// New returns a queue holding ids in the given order.
func New(ids ...string) *Queue {
	q := &Queue{}
	for _, id := range ids {
		q.Append(id)
	}
	return q
}

// Append adds id at the end unless it is already queued.
func (q *Queue) Append(id string) bool {
	if q.indexOf(id) >= 0 {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

// Sync reconciles the queue with the backend's list: ids no longer present
// are dropped and new ids are appended in the order given. The current item
// stays selected if it survives.
func (q *Queue) Sync(ids []string) (added, removed []string) {
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	for _, id := range q.IDs() {
		if !present[id] {
			q.Remove(id)
			removed = append(removed, id)
		}
	}
	for _, id := range ids {
		if q.Append(id) {
			added = append(added, id)
		}
	}
	return added, removed
}

// Current returns the selected id, or false when the queue is empty.
func (q *Queue) Current() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	return q.ids[q.current], true
}

// Position is the zero-based index of the current item.
func (q *Queue) Position() int {
	return q.current
}

func (q *Queue) Len() int {
	return len(q.ids)
}

// Advance moves to the next item, wrapping from the last to the first.
func (q *Queue) Advance() {
	if len(q.ids) == 0 {
		return
	}
	q.current = (q.current + 1) % len(q.ids)
}

// Select moves the pointer to id.
func (q *Queue) Select(id string) bool {
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.current = i
	return true
}

// Remove deletes id, keeping the relative order of the rest. Removing the
// current item selects the one that followed it, wrapping to the first.
func (q *Queue) Remove(id string) bool {
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.ids = append(q.ids[:i], q.ids[i+1:]...)
	switch {
	case len(q.ids) == 0:
		q.current = 0
	case i < q.current:
		q.current--
	case q.current >= len(q.ids):
		q.current = 0
	}
	return true
}

// IDs returns a copy of the queued ids.
func (q *Queue) IDs() []string {
	return append([]string(nil), q.ids...)
}

func (q *Queue) Clear() {
	q.ids = nil
	q.current = 0
}

func (q *Queue) indexOf(id string) int {
	for i, v := range q.ids {
		if v == id {
			return i
		}
	}
	return -1
}
