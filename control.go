package quanta

import (
	"fmt"
	"io"
	"sort"

	"github.com/aclements/go-moremath/stats"

	"quanta/internal/core"
	"quanta/internal/status"
)

// SetTimeslice reconfigures the preemption quantum in nanoseconds
// (minimum 1 ms). If the timer is running it is restarted atomically at
// the new interval.
func SetTimeslice(ns uint64) error {
	if sched == nil {
		return status.New(status.InvalidArgument, "runtime not initialized")
	}
	if err := sched.SetTimeslice(ns); err != nil {
		return status.New(status.InvalidArgument, err.Error())
	}
	return nil
}

// GetTimeslice returns the configured quantum in nanoseconds.
func GetTimeslice() uint64 {
	if sched == nil {
		return 0
	}
	return sched.GetTimeslice()
}

// EnablePreemption lets the timer force switches again after a
// DisablePreemption. Cooperative switching (yield, blocking calls) is
// unaffected either way.
func EnablePreemption() {
	if sched != nil {
		sched.SetPreemptionEnabled(true)
	}
}

// DisablePreemption stops the timer tick from forcing switches; the
// runtime becomes purely cooperative until re-enabled.
func DisablePreemption() {
	if sched != nil {
		sched.SetPreemptionEnabled(false)
	}
}

// SetPriority changes h's fixed priority ([0,31], 31 highest) and
// relocates it in the fixed-priority run structure if queued.
func SetPriority(h *Thread, prio int) error {
	if sched == nil || h == nil || h.t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	return sched.SetPriority(h.t, prio)
}

// GetPriority returns h's fixed priority.
func GetPriority(h *Thread) (int, error) {
	if h == nil || h.t == nil {
		return 0, status.New(status.InvalidArgument, "nil thread handle")
	}
	return h.t.Priority, nil
}

// SetNice changes h's nice value ([-20,+19]); under the fair policy its
// weight is re-derived immediately, its accrued vruntime untouched.
func SetNice(h *Thread, nice int) error {
	if sched == nil || h == nil || h.t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	return sched.SetNice(h.t, nice)
}

// GetNice returns h's nice value.
func GetNice(h *Thread) (int, error) {
	if h == nil || h.t == nil {
		return 0, status.New(status.InvalidArgument, "nil thread handle")
	}
	return h.t.Nice, nil
}

// Stats is a best-effort snapshot of scheduler counters plus summary
// statistics over the live threads' accumulated runtimes. Values read
// without a critical section can be mid-update; they are diagnostics,
// not synchronization state.
type Stats struct {
	Policy          string
	ContextSwitches uint64
	ScheduleCalls   uint64
	ThreadsCreated  uint64
	LiveThreads     int

	// DecayEvents counts timer ticks that leave the running thread's
	// timeslice exhausted under the fixed-priority policy; zero
	// elsewhere. Informational only.
	DecayEvents uint64

	// Runtime distribution across live threads, nanoseconds.
	RuntimeMean float64
	RuntimeP50  float64
	RuntimeP99  float64
}

// GetStats snapshots the counters and summarizes per-thread runtime
// with go-moremath's sample statistics.
func GetStats() Stats {
	if sched == nil {
		return Stats{}
	}
	st := Stats{
		Policy:          sched.Policy.Name(),
		ContextSwitches: sched.ContextSwitches(),
		ScheduleCalls:   sched.ScheduleCalls(),
		ThreadsCreated:  sched.ThreadsCreated(),
		LiveThreads:     sched.Table.Len(),
		DecayEvents:     sched.DecayEvents(),
	}
	var xs []float64
	sched.Table.Each(func(t *core.Thread) {
		xs = append(xs, float64(t.TotalRuntime))
	})
	if len(xs) > 0 {
		sort.Float64s(xs)
		sample := stats.Sample{Xs: xs, Sorted: true}
		st.RuntimeMean = sample.Mean()
		st.RuntimeP50 = sample.Quantile(0.5)
		st.RuntimeP99 = sample.Quantile(0.99)
	}
	return st
}

// ResetStats zeroes the scheduler's counters.
func ResetStats() {
	if sched != nil {
		sched.ResetStats()
	}
}

// DebugDump writes a table of every live thread (id, name, state,
// priority, nice, vruntime, total runtime) plus the counter snapshot
// to w.
func DebugDump(w io.Writer) {
	if sched == nil {
		fmt.Fprintln(w, "quanta: not initialized")
		return
	}
	st := GetStats()
	fmt.Fprintf(w, "policy=%s ctxswitches=%d schedcalls=%d created=%d live=%d decay=%d\n",
		st.Policy, st.ContextSwitches, st.ScheduleCalls, st.ThreadsCreated,
		st.LiveThreads, st.DecayEvents)
	fmt.Fprintf(w, "runtime ns: mean=%.0f p50=%.0f p99=%.0f\n",
		st.RuntimeMean, st.RuntimeP50, st.RuntimeP99)
	fmt.Fprintf(w, "%5s %-20s %-10s %4s %5s %12s %12s\n",
		"id", "name", "state", "pri", "nice", "vruntime", "runtime")
	sched.Table.Each(func(t *core.Thread) {
		fmt.Fprintf(w, "%5d %-20s %-10s %4d %5d %12d %12d\n",
			t.ID, t.Name, t.State, t.Priority, t.Nice, t.VRuntime, t.TotalRuntime)
	})
}
