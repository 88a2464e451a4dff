package trism

import (
	"maps"
	"time"
)

// Level is the escalation level of a content source.
type Level string

const (
	LevelNormal     Level = "normal"
	LevelThrottle   Level = "throttle"
	LevelQuarantine Level = "quarantine"
	LevelKill       Level = "kill"
)

// BreakerState is the circuit-breaker state of one content source.
type BreakerState struct {
	Failures  float64   `json:"failures"`
	Successes int       `json:"successes"`
	Level     Level     `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Layer) levelFor(failures float64) Level {
	switch {
	case failures >= l.cfg.KillThreshold:
		return LevelKill
	case failures >= l.cfg.QuarantineThreshold:
		return LevelQuarantine
	case failures >= l.cfg.ThrottleThreshold:
		return LevelThrottle
	default:
		return LevelNormal
	}
}

// recordLocked applies one failure or success to sourceID and returns the
// new state. A killed source stays killed until Reset.
func (l *Layer) recordLocked(sourceID string, failed bool) BreakerState {
	st, ok := l.breakers[sourceID]
	if !ok {
		st = &BreakerState{Level: LevelNormal}
		l.breakers[sourceID] = st
	}

	if failed {
		st.Failures++
	} else {
		st.Successes++
		st.Failures = max(0, st.Failures-l.cfg.SuccessDecay)
	}
	st.UpdatedAt = time.Now().UTC()

	if st.Level != LevelKill {
		st.Level = l.levelFor(st.Failures)
	}
	return *st
}

// RecordFailure counts a failure for sourceID outside of Evaluate, e.g. a
// provider error. It returns the new state.
func (l *Layer) RecordFailure(sourceID string) BreakerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(sourceID, true)
}

// RecordSuccess counts a success for sourceID outside of Evaluate.
func (l *Layer) RecordSuccess(sourceID string) BreakerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(sourceID, false)
}

// Level returns the current level of sourceID. Unknown sources are normal.
func (l *Layer) Level(sourceID string) Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.breakers[sourceID]; ok {
		return st.Level
	}
	return LevelNormal
}

// Breaker returns a copy of the breaker state for sourceID.
func (l *Layer) Breaker(sourceID string) (BreakerState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.breakers[sourceID]
	if !ok {
		return BreakerState{}, false
	}
	return *st, true
}

// Breakers returns a copy of every breaker state keyed by source id.
func (l *Layer) Breakers() map[string]BreakerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]BreakerState, len(l.breakers))
	for id, st := range maps.All(l.breakers) {
		out[id] = *st
	}
	return out
}
