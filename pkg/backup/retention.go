package backup

import (
	"sort"
	"time"
)

// MaxRetention bounds the retention count accepted from callers.
const MaxRetention = 365

// Entry is one backup in a retention pool: all files sharing a base name.
type Entry struct {
	Base      string
	Timestamp time.Time
	Files     []string
}

// Plan decides which entries to delete so that at most retention entries of
// the pool survive, newest first. The pool is the newly written entry plus
// every existing entry; retention 0 disables rotation. The newest entry is
// never among the deletions. Timestamp ties are broken by base name so the
// outcome is deterministic.
func Plan(existing []Entry, newest Entry, retention int) []Entry {
	if retention <= 0 {
		return nil
	}

	pool := make([]Entry, 0, len(existing)+1)
	pool = append(pool, newest)
	for _, e := range existing {
		if e.Base != newest.Base {
			pool = append(pool, e)
		}
	}

	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].Timestamp.Equal(pool[j].Timestamp) {
			return pool[i].Timestamp.After(pool[j].Timestamp)
		}
		return pool[i].Base < pool[j].Base
	})

	if len(pool) <= retention {
		return nil
	}

	keep := pool[:retention]
	drop := pool[retention:]

	// a timestamp tie must not rotate out the entry just written
	for i, e := range drop {
		if e.Base == newest.Base {
			drop[i] = keep[retention-1]
			keep[retention-1] = e
			break
		}
	}
	return drop
}
