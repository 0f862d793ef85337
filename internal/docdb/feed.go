package docdb

import "slices"

// Subscribe registers fn to receive every committed write, local or
// replicated, in commit order. Callbacks run synchronously while the write
// lock is held, so fn must not write to the database. The returned function
// removes the subscription.
func (d *DB) Subscribe(fn func(Doc)) func() {
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

// publish must be called with d.mu held, after the commit.
func (d *DB) publish(doc Doc) {
	d.subMu.Lock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Doc), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, d.subs[id])
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(doc)
	}
}

