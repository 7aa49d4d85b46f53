package history

import (
	"context"

	"github.com/dalili-app/dalili/pkg/log"
)

var logger = log.ForComponent("history")

// Reconciler composes the durable store and the local cache behind the
// load/record/delete operations the search surfaces use.
type Reconciler struct {
	durable *DurableStore
	cache   *LocalCache
}

// NewReconciler wires the two history stores together.
func NewReconciler(durable *DurableStore, cache *LocalCache) *Reconciler {
	return &Reconciler{durable: durable, cache: cache}
}

// Load produces the merged suggestion list for an identity and scope. A
// failing durable fetch degrades to the local cache alone; history is a
// convenience feature and never surfaces errors to the caller.
func (r *Reconciler) Load(ctx context.Context, identity string, scope Scope) []Entry {
	durable, err := r.durable.Get(ctx, identity, scope)
	if err != nil {
		logger.Warnf("durable history fetch failed, serving local cache only: %v", err)
		durable = nil
	}

	return Merge(durable, r.cache.Read(scope), scope)
}

// Record appends a submitted search to both stores. The durable write is
// best-effort (anonymous users have nothing to write to; transient
// failures are logged and swallowed); the local cache is updated
// unconditionally so the entry is never lost to this device.
func (r *Reconciler) Record(ctx context.Context, identity string, scope Scope, text string, filters map[string]string) {
	if text == "" {
		return
	}

	if err := r.durable.Put(ctx, identity, scope, text, filters); err != nil {
		logger.Warnf("durable history write failed for %q: %v", text, err)
	}

	if err := r.cache.Record(scope, text); err != nil {
		logger.Warnf("local history write failed for %q: %v", text, err)
	}
}

// Delete removes an entry from both stores. The caller has already
// removed it from the visible list optimistically; a failing durable
// delete is logged but the entry is not restored, trading a small
// inconsistency window for responsiveness.
func (r *Reconciler) Delete(ctx context.Context, scope Scope, id, text string) {
	if text != "" {
		if err := r.cache.Remove(scope, text); err != nil {
			logger.Warnf("local history delete failed for %q: %v", text, err)
		}
	}

	if id == "" || IsLocalID(id) {
		return
	}

	if err := r.durable.Delete(ctx, id); err != nil {
		logger.Warnf("durable history delete failed for %s: %v", id, err)
	}
}
