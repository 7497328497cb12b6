// Package state provides the undo journal shared by every in-memory
// collaborator of the ledger, so that a failed operation leaves no trace in
// any of them.
package state

import "sync"

// Journal is an append-only list of undo functions with snapshot ids, in the
// Snapshot/RevertToSnapshot shape of an EVM state database.
type Journal struct {
	mu      sync.Mutex
	entries []func()
	// marks[i] is the journal length when snapshot i+1 was taken.
	marks []int
}

func NewJournal() *Journal {
	return &Journal{}
}

// Append records an undo function. A nil journal ignores it, which lets
// collaborators run without one.
func (j *Journal) Append(undo func()) {
	if j == nil || undo == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, undo)
	j.mu.Unlock()
}

// Snapshot marks the current position and returns its id. Ids start at 1.
func (j *Journal) Snapshot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.marks = append(j.marks, len(j.entries))
	return len(j.marks)
}

// RevertToSnapshot runs every undo recorded since snapshot id, newest first,
// and forgets that snapshot and all later ones.
func (j *Journal) RevertToSnapshot(id int) {
	j.mu.Lock()
	if id <= 0 || id > len(j.marks) {
		j.mu.Unlock()
		return
	}
	mark := j.marks[id-1]
	undo := j.entries[mark:]
	j.entries = j.entries[:mark]
	j.marks = j.marks[:id-1]
	j.mu.Unlock()

	// undo funcs take their owners' locks, never the journal's
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Commit forgets snapshot id and later ones. Once no snapshot is open the
// entries are dropped as well.
func (j *Journal) Commit(id int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id <= 0 || id > len(j.marks) {
		return
	}
	j.marks = j.marks[:id-1]
	if len(j.marks) == 0 {
		j.entries = j.entries[:0]
	}
}

// Len returns the number of pending undo entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
