// Package journal records undo actions so a unit of work can be rolled back as a
// whole. Every in-process state holder that takes part in an engine operation
// writes through the same journal.
package journal

// Journal is an append-only list of undo closures. It is not safe for
// concurrent use; callers serialize access.
type Journal struct {
	undo []func()
}

func New() *Journal {
	return &Journal{}
}

// Append records an undo action.
func (j *Journal) Append(undo func()) {
	j.undo = append(j.undo, undo)
}

// Snapshot returns an id that RevertToSnapshot can roll back to.
func (j *Journal) Snapshot() int {
	return len(j.undo)
}

// RevertToSnapshot undoes every change recorded after id, newest first.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 || id > len(j.undo) {
		return
	}
	for i := len(j.undo) - 1; i >= id; i-- {
		j.undo[i]()
		j.undo[i] = nil
	}
	j.undo = j.undo[:id]
}

// Commit forgets every recorded change.
func (j *Journal) Commit() {
	clear(j.undo)
	j.undo = j.undo[:0]
}

// Len is the number of pending undo actions.
func (j *Journal) Len() int {
	return len(j.undo)
}

// Set assigns v to *dst and records the previous value.
func Set[T any](j *Journal, dst *T, v T) {
	prev := *dst
	j.Append(func() { *dst = prev })
	*dst = v
}

// Touch records the current value of *dst so later in-place mutations can be undone.
func Touch[T any](j *Journal, dst *T) {
	prev := *dst
	j.Append(func() { *dst = prev })
}

// Put stores m[k] = v and records whether k existed before.
func Put[K comparable, V any](j *Journal, m map[K]V, k K, v V) {
	prev, existed := m[k]
	j.Append(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// Delete removes m[k] and records the previous entry.
func Delete[K comparable, V any](j *Journal, m map[K]V, k K) {
	prev, existed := m[k]
	if !existed {
		return
	}
	j.Append(func() { m[k] = prev })
	delete(m, k)
}
