package quote

import (
	"sort"
	"time"

	"github.com/quotepulse/stock-tracker/internal/entity"
)

type subKey struct {
	code string
	feed entity.FeedType
}

// ledger tracks the live gateway subscriptions by last use. It is not safe
// for concurrent use; the Manager guards it with its ledger mutex.
type ledger struct {
	entries map[subKey]time.Time
}

func newLedger() *ledger {
	return &ledger{entries: make(map[subKey]time.Time)}
}

func (l *ledger) len() int {
	return len(l.entries)
}

func (l *ledger) has(k subKey) bool {
	_, ok := l.entries[k]
	return ok
}

func (l *ledger) touch(k subKey, now time.Time) {
	l.entries[k] = now
}

func (l *ledger) remove(k subKey) {
	delete(l.entries, k)
}

func (l *ledger) clear() {
	l.entries = make(map[subKey]time.Time)
}

// victims returns up to n eviction candidates, oldest first. Entries on the
// requested feed are preferred; the remainder comes from the globally oldest
// entries across all feeds, excluding anything already chosen. Last-used
// ties break on key so selection stays deterministic.
func (l *ledger) victims(feed entity.FeedType, n int) []subKey {
	if n <= 0 || len(l.entries) == 0 {
		return nil
	}

	type aged struct {
		key      subKey
		lastUsed time.Time
	}

	all := make([]aged, 0, len(l.entries))
	for k, t := range l.entries {
		all = append(all, aged{key: k, lastUsed: t})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].lastUsed.Equal(all[j].lastUsed) {
			return all[i].lastUsed.Before(all[j].lastUsed)
		}
		if all[i].key.code != all[j].key.code {
			return all[i].key.code < all[j].key.code
		}
		return all[i].key.feed < all[j].key.feed
	})

	chosen := make([]subKey, 0, n)
	picked := make(map[subKey]struct{}, n)
	for _, e := range all {
		if len(chosen) == n {
			break
		}
		if e.key.feed != feed {
			continue
		}
		chosen = append(chosen, e.key)
		picked[e.key] = struct{}{}
	}
	for _, e := range all {
		if len(chosen) == n {
			break
		}
		if _, ok := picked[e.key]; ok {
			continue
		}
		chosen = append(chosen, e.key)
	}

	return chosen
}
