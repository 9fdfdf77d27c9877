package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

const dedupStoreTimeout = 50 * time.Millisecond

type dedupTable struct {
	mu sync.Mutex
	m  map[string]time.Time
}

// dedupKey prefers the firing id; otherwise same kind, alarm and text
// count as a repeat.
func dedupKey(n Notification) string {
	if n.FiringID != "" {
		return "firing:" + n.FiringID
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(n.Kind) + "|" + strconv.FormatInt(n.AlarmID, 10) + "|" + n.Text))
	return fmt.Sprintf("text:%x", h.Sum64())
}

// allow reports whether key is outside its suppression window and, if
// so, opens a new one.
func (d *dedupTable) allow(ctx context.Context, key string, now time.Time, window time.Duration, maxEntries int, st DedupStore) bool {
	d.mu.Lock()
	if d.m == nil {
		d.m = map[string]time.Time{}
	}
	until, seen := d.m[key]
	d.mu.Unlock()
	if seen && now.Before(until) {
		return false
	}

	if st != nil {
		cctx, cancel := context.WithTimeout(ctx, dedupStoreTimeout)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			d.mu.Lock()
			d.m[key] = until
			d.mu.Unlock()
			return false
		}
	}

	until = now.Add(window)
	d.mu.Lock()
	d.m[key] = until
	d.pruneLocked(now, maxEntries)
	d.mu.Unlock()

	if st != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupStoreTimeout)
		// Losing this only risks a duplicate after restart.
		_ = st.PutDedup(cctx, key, until)
		cancel()
	}
	return true
}

func (d *dedupTable) pruneLocked(now time.Time, maxEntries int) {
	for k, until := range d.m {
		if !now.Before(until) {
			delete(d.m, k)
		}
	}
	for len(d.m) > maxEntries {
		var (
			oldest string
			at     time.Time
		)
		for k, until := range d.m {
			if oldest == "" || until.Before(at) {
				oldest, at = k, until
			}
		}
		delete(d.m, oldest)
	}
}
