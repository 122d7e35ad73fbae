package generator

import (
	"sync"

	"github.com/shiptoday/nanochat/internal/domain"
)

// RunStats 运行期间的接受/拒绝计数，所有 worker 共享，读写都需持锁
type RunStats struct {
	mutex    sync.Mutex
	accepted int
	rejected int
	byKind   map[string]int
}

// StatsSnapshot RunStats 的只读快照
type StatsSnapshot struct {
	Accepted       int            `json:"accepted"`
	Rejected       int            `json:"rejected"`
	RejectedByKind map[string]int `json:"rejected_by_kind"`
}

func (s *RunStats) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.accepted = 0
	s.rejected = 0
	s.byKind = make(map[string]int)
}

// record 计入一个终态结果，返回计入后的累计值
func (s *RunStats) record(outcome domain.Outcome, kind string) (accepted, rejected int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.byKind == nil {
		s.byKind = make(map[string]int)
	}
	if outcome.Status == domain.OutcomeAccepted {
		s.accepted++
	} else {
		s.rejected++
		s.byKind[kind]++
	}
	return s.accepted, s.rejected
}

// Snapshot 返回当前计数的副本
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	byKind := make(map[string]int, len(s.byKind))
	for k, v := range s.byKind {
		byKind[k] = v
	}
	return StatsSnapshot{Accepted: s.accepted, Rejected: s.rejected, RejectedByKind: byKind}
}
