package republic

import (
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
)

const (
	statusLogLines = 50
	statusRecent   = 3
)

// Status is the read-only polling surface of the scheduler.
type Status struct {
	Alive            bool              `json:"alive"`
	Epoch            int64             `json:"epoch"`
	Queues           map[string]int    `json:"queues"`
	Vitals           Vitals            `json:"vitals"`
	Graph            graph.Stats       `json:"graph"`
	Log              []string          `json:"log"`
	RecentHypotheses []common.Artifact `json:"recent_hypotheses"`
	RecentAlerts     []common.Artifact `json:"recent_alerts"`
}

// Status returns the current state with the last logLines system log lines
// (a default of 50 when logLines <= 0).
func (e *Engine) Status(logLines int) Status {
	if logLines <= 0 {
		logLines = statusLogLines
	}

	e.mu.Lock()
	st := Status{
		Alive:            e.alive,
		Epoch:            e.epoch,
		Queues:           make(map[string]int, casteCount),
		Vitals:           e.vitals,
		RecentHypotheses: lastN(e.hypotheses, statusRecent),
		RecentAlerts:     lastN(e.alerts, statusRecent),
	}
	for _, c := range Castes {
		st.Queues[c.String()] = e.queues[c].len()
	}
	e.mu.Unlock()

	st.Graph = e.graph.Stats()
	st.Log = e.history.Lines(logLines)
	return st
}

// Queue returns the pending ids of caste in order.
func (e *Engine) Queue(c Caste) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues[c].snapshot()
}

// lastN copies the n most recent entries, newest first.
func lastN(s []common.Artifact, n int) []common.Artifact {
	out := make([]common.Artifact, 0, n)
	for i := len(s) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s[i])
	}
	return out
}
