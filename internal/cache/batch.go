package cache

import "strings"

type update struct {
	key   string
	value string
	ok    bool
}

// Batch collects the results of one refresh cycle. It is not safe for
// concurrent use; the refresh worker owns it until Merge.
type Batch struct {
	updates []update
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put records a successful fetch.
func (b *Batch) Put(key, value string) {
	b.updates = append(b.updates, update{key: strings.TrimSpace(key), value: value, ok: true})
}

// Fail records a failed fetch for key. sentinel is stored only if the cache
// has no good value for key when the batch is merged.
func (b *Batch) Fail(key, sentinel string) {
	b.updates = append(b.updates, update{key: strings.TrimSpace(key), value: sentinel})
}

// Len returns the number of recorded results.
func (b *Batch) Len() int {
	return len(b.updates)
}
