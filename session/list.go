package session

import (
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

// Append prunes expired records, appends rec and evicts oldest records
// until at most max remain. It returns the new list and the number evicted
// for capacity. The input slice is not modified.
func Append(list []Record, rec Record, max int, now time.Time) ([]Record, int) {
	out := Active(list, now)
	out = append(out, rec)

	evicted := 0
	if max > 0 && len(out) > max {
		evicted = len(out) - max
		out = out[evicted:]
	}
	return out, evicted
}

// Active returns a copy of the unexpired records, preserving order.
func Active(list []Record, now time.Time) []Record {
	out := make([]Record, 0, len(list)+1)
	for _, rec := range list {
		if rec.Expired(now) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// FindByHash returns the index of the record with tokenHash, or -1.
func FindByHash(list []Record, tokenHash string) int {
	for i, rec := range list {
		if internal.DigestsEqual(rec.TokenHash, tokenHash) {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the record with id, or -1.
func FindByID(list []Record, id string) int {
	for i, rec := range list {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// RemoveAt returns a copy of list without index i.
func RemoveAt(list []Record, i int) []Record {
	out := make([]Record, 0, len(list))
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
