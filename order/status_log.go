package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusLog 最近 N 条记录，最新在尾部，超出容量丢弃最旧的。
type StatusLog struct {
	cap     int
	records []Record
}

func NewStatusLog(capacity int) *StatusLog {
	if capacity <= 0 {
		capacity = DefaultStatusLogCap
	}
	return &StatusLog{cap: capacity, records: make([]Record, 0, capacity)}
}

func (l *StatusLog) Append(r Record) {
	l.records = append(l.records, r)
	if len(l.records) > l.cap {
		drop := len(l.records) - l.cap
		kept := make([]Record, l.cap)
		copy(kept, l.records[drop:])
		l.records = kept
	}
}

func (l *StatusLog) Len() int { return len(l.records) }

func (l *StatusLog) Cap() int { return l.cap }

// Records 拷贝输出，调用方可在锁外使用。
func (l *StatusLog) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// BackfillLast 给最近一条仍未平的记录补写退出参考价。
func (l *StatusLog) BackfillLast(price decimal.Decimal, now time.Time) (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	last := &l.records[len(l.records)-1]
	if !last.BackfillExit(price, now) {
		return Record{}, false
	}
	return *last, true
}
