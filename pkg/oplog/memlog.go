package oplog

import (
	"sync"

	"github.com/zhangyunhao116/skipmap"
)

// MemLog is an in-memory replicated log ordered by timestamp.
type MemLog struct {
	mu      sync.Mutex
	last    Timestamp
	entries *skipmap.FuncMap[Timestamp, *Entry]
}

func NewMemLog() *MemLog {
	return &MemLog{
		entries: skipmap.NewFunc[Timestamp, *Entry](func(a, b Timestamp) bool {
			return a < b
		}),
	}
}

// Append assigns the next timestamp to e and stores it.
func (l *MemLog) Append(e *Entry) Timestamp {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last++
	e.Timestamp = l.last
	l.entries.Store(e.Timestamp, e)
	return e.Timestamp
}

func (l *MemLog) LastTimestamp() Timestamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Entries returns entries with timestamp greater than after, in log order.
func (l *MemLog) Entries(after Timestamp) []*Entry {
	var res []*Entry
	l.entries.Range(func(k Timestamp, e *Entry) bool {
		if k > after {
			res = append(res, e)
		}
		return true
	})
	return res
}

// Find returns entries matching pred, in log order.
func (l *MemLog) Find(pred func(e *Entry) bool) []*Entry {
	var res []*Entry
	l.entries.Range(func(_ Timestamp, e *Entry) bool {
		if pred(e) {
			res = append(res, e)
		}
		return true
	})
	return res
}

func (l *MemLog) Len() int {
	return l.entries.Len()
}
