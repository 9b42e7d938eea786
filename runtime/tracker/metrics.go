package tracker

import (
	"sort"
	"time"
)

// ErrorLogSize is the number of errors retained per capability.
const ErrorLogSize = 10

type (
	// Metrics is a snapshot of the aggregate for one capability.
	Metrics struct {
		CapabilityID string
		Invocations  int
		Successes    int
		Errors       int
		// AvgResponseMs is the running mean of response times.
		AvgResponseMs  float64
		LastInvocation time.Time
		// ErrorLog holds the most recent errors, oldest first.
		ErrorLog []ErrorEntry
	}

	// ErrorEntry is one failed execution in the error log.
	ErrorEntry struct {
		ExecutionID string
		OperationID string
		Input       string
		Message     string
		At          time.Time
	}

	aggregate struct {
		capability  string
		invocations int
		successes   int
		errors      int
		avg         float64
		last        time.Time
		ring        [ErrorLogSize]ErrorEntry
		ringNext    int
		ringLen     int
	}
)

// SuccessRate returns Successes/Invocations, or 0 before the first
// invocation.
func (m Metrics) SuccessRate() float64 {
	if m.Invocations == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Invocations)
}

// Metrics returns the metrics of one capability.
func (t *Tracker) Metrics(capabilityID string) (Metrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.metrics[capabilityID]
	if !ok {
		return Metrics{CapabilityID: capabilityID}, false
	}
	return a.snapshot(), true
}

// AllMetrics returns the metrics of every capability that ran, sorted by
// capability id.
func (t *Tracker) AllMetrics() []Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Metrics, 0, len(t.metrics))
	for _, a := range t.metrics {
		out = append(out, a.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapabilityID < out[j].CapabilityID })
	return out
}

// Popular returns up to n capability ids ordered by invocation count, most
// used first. Ties are ordered by id.
func (t *Tracker) Popular(n int) []string {
	all := t.AllMetrics()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Invocations > all[j].Invocations })
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	ids := make([]string, len(all))
	for i, m := range all {
		ids[i] = m.CapabilityID
	}
	return ids
}

// aggregateFor returns the aggregate of a capability, creating it. The
// caller holds the lock.
func (t *Tracker) aggregateFor(capabilityID string) *aggregate {
	a, ok := t.metrics[capabilityID]
	if !ok {
		a = &aggregate{capability: capabilityID}
		t.metrics[capabilityID] = a
	}
	return a
}

// record folds a terminal execution into the aggregate using an incremental
// mean.
func (a *aggregate) record(e *Execution, at time.Time) {
	a.invocations++
	a.avg += (float64(e.ResponseTimeMs) - a.avg) / float64(a.invocations)
	a.last = at
	if e.Status == StatusCompleted {
		a.successes++
		return
	}
	a.errors++
	a.ring[a.ringNext] = ErrorEntry{
		ExecutionID: e.ID,
		OperationID: e.OperationID,
		Input:       e.Input,
		Message:     e.Error,
		At:          at,
	}
	a.ringNext = (a.ringNext + 1) % ErrorLogSize
	if a.ringLen < ErrorLogSize {
		a.ringLen++
	}
}

func (a *aggregate) snapshot() Metrics {
	m := Metrics{
		CapabilityID:   a.capability,
		Invocations:    a.invocations,
		Successes:      a.successes,
		Errors:         a.errors,
		AvgResponseMs:  a.avg,
		LastInvocation: a.last,
	}
	if a.ringLen > 0 {
		m.ErrorLog = make([]ErrorEntry, 0, a.ringLen)
		start := (a.ringNext - a.ringLen + ErrorLogSize) % ErrorLogSize
		for i := 0; i < a.ringLen; i++ {
			m.ErrorLog = append(m.ErrorLog, a.ring[(start+i)%ErrorLogSize])
		}
	}
	return m
}
