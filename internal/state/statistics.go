package state

import "sync/atomic"

// Statistics counts run outcomes. Counters are atomic so workers bump
// them without touching the state mutex.
type Statistics struct {
	Accepted          atomic.Int64
	RejectedQuality   atomic.Int64
	RejectedDuplicate atomic.Int64
	RejectedLanguage  atomic.Int64
	RejectedEmpty     atomic.Int64
	RejectedShort     atomic.Int64
	Failed            atomic.Int64
	FetchAttempts     atomic.Int64
}

// StatisticsSnapshot is the serializable form of Statistics.
type StatisticsSnapshot struct {
	Accepted          int64 `json:"accepted"`
	RejectedQuality   int64 `json:"rejected_quality"`
	RejectedDuplicate int64 `json:"rejected_duplicate"`
	RejectedLanguage  int64 `json:"rejected_lang"`
	RejectedEmpty     int64 `json:"rejected_empty"`
	RejectedShort     int64 `json:"rejected_short"`
	Failed            int64 `json:"failed"`
	FetchAttempts     int64 `json:"fetch_attempts"`
}

// Snapshot copies the current counter values.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		Accepted:          s.Accepted.Load(),
		RejectedQuality:   s.RejectedQuality.Load(),
		RejectedDuplicate: s.RejectedDuplicate.Load(),
		RejectedLanguage:  s.RejectedLanguage.Load(),
		RejectedEmpty:     s.RejectedEmpty.Load(),
		RejectedShort:     s.RejectedShort.Load(),
		Failed:            s.Failed.Load(),
		FetchAttempts:     s.FetchAttempts.Load(),
	}
}

// Restore overwrites the counters from a snapshot.
func (s *Statistics) Restore(snap StatisticsSnapshot) {
	s.Accepted.Store(snap.Accepted)
	s.RejectedQuality.Store(snap.RejectedQuality)
	s.RejectedDuplicate.Store(snap.RejectedDuplicate)
	s.RejectedLanguage.Store(snap.RejectedLanguage)
	s.RejectedEmpty.Store(snap.RejectedEmpty)
	s.RejectedShort.Store(snap.RejectedShort)
	s.Failed.Store(snap.Failed)
	s.FetchAttempts.Store(snap.FetchAttempts)
}

// Rejected sums every rejection counter.
func (s *Statistics) Rejected() int64 {
	return s.RejectedQuality.Load() +
		s.RejectedDuplicate.Load() +
		s.RejectedLanguage.Load() +
		s.RejectedEmpty.Load() +
		s.RejectedShort.Load()
}
