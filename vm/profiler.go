package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Profiler tracks intrinsic invocation counts to show where a script spends
// its calls. Intrinsics are profiled by registered name; calls through an
// unnamed instruction are counted under "<intrinsic>".

// CallProfile is a snapshot of the profiling data for a single intrinsic.
type CallProfile struct {
	Name            string
	InvocationCount uint64
	IsHot           bool // True once the threshold was reached
}

// callRecord is the live, concurrently updated counterpart of CallProfile.
type callRecord struct {
	name  string
	count atomic.Uint64
	hot   atomic.Bool
}

func (r *callRecord) snapshot() *CallProfile {
	return &CallProfile{
		Name:            r.name,
		InvocationCount: r.count.Load(),
		IsHot:           r.hot.Load(),
	}
}

// Profiler manages profiling for all intrinsics called by an interpreter.
type Profiler struct {
	// Profile storage (thread-safe)
	profiles sync.Map // name -> *callRecord

	// HotThreshold is the call count at which an intrinsic becomes hot.
	HotThreshold uint64 // Default: 1000

	// Callback when an intrinsic becomes hot
	OnHot func(profile *CallProfile)

	hotCount atomic.Int64
}

// NewProfiler creates a new profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 1000}
}

// RecordCall increments the invocation count for name.
// Returns true if this invocation caused the intrinsic to become hot.
func (p *Profiler) RecordCall(name string) bool {
	if name == "" {
		name = "<intrinsic>"
	}

	val, ok := p.profiles.Load(name)
	if !ok {
		val, _ = p.profiles.LoadOrStore(name, &callRecord{name: name})
	}
	rec := val.(*callRecord)

	count := rec.count.Add(1)
	if count < p.HotThreshold || rec.hot.Load() {
		return false
	}

	// Only the caller that flips the flag reports the transition.
	if !rec.hot.CompareAndSwap(false, true) {
		return false
	}
	p.hotCount.Add(1)
	vmLog.Debugf("intrinsic %s is hot after %d calls", name, count)

	if p.OnHot != nil {
		p.OnHot(rec.snapshot())
	}
	return true
}

// Profile returns a snapshot of the profile for name, or nil if it was never
// called.
func (p *Profiler) Profile(name string) *CallProfile {
	if val, ok := p.profiles.Load(name); ok {
		return val.(*callRecord).snapshot()
	}
	return nil
}

// IsHot returns true if name has exceeded the hot threshold.
func (p *Profiler) IsHot(name string) bool {
	val, ok := p.profiles.Load(name)
	return ok && val.(*callRecord).hot.Load()
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Intrinsics       int    // Number of distinct intrinsics called
	Hot              int    // Number of hot intrinsics
	TotalInvocations uint64 // Total calls
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	stats := ProfilerStats{Hot: int(p.hotCount.Load())}
	p.profiles.Range(func(key, value any) bool {
		stats.Intrinsics++
		stats.TotalInvocations += value.(*callRecord).count.Load()
		return true
	})
	return stats
}

// Top returns the n most frequently called intrinsics, most calls first.
// Ties are broken by name.
func (p *Profiler) Top(n int) []CallProfile {
	var all []CallProfile
	p.profiles.Range(func(key, value any) bool {
		all = append(all, *value.(*callRecord).snapshot())
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].InvocationCount != all[j].InvocationCount {
			return all[i].InvocationCount > all[j].InvocationCount
		}
		return all[i].Name < all[j].Name
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.profiles.Clear()
	p.hotCount.Store(0)
}
