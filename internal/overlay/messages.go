package overlay

import (
	"sync"
	"time"
)

const messageLogCapacity = 100

// MessageRecord is one broadcast text as seen by this node.
type MessageRecord struct {
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// messageLog keeps the most recent broadcast texts for the admin view.
type messageLog struct {
	mu      sync.Mutex
	records []MessageRecord
	total   uint64
}

func newMessageLog() *messageLog {
	return &messageLog{records: make([]MessageRecord, 0, messageLogCapacity)}
}

func (l *messageLog) add(rec MessageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if len(l.records) == messageLogCapacity {
		copy(l.records, l.records[1:])
		l.records[len(l.records)-1] = rec
		return
	}
	l.records = append(l.records, rec)
}

// recent returns up to limit records, newest last.
func (l *messageLog) recent(limit int) []MessageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.records) {
		limit = len(l.records)
	}
	out := make([]MessageRecord, limit)
	copy(out, l.records[len(l.records)-limit:])
	return out
}

func (l *messageLog) count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
