package vm

import (
	"sync"
	"testing"
)

func TestProfilerRecordCall(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 5

	if p.RecordCall("+") {
		t.Error("intrinsic should not be hot after 1 call")
	}
	profile := p.Profile("+")
	if profile == nil {
		t.Fatal("profile should exist after a call")
	}
	if profile.InvocationCount != 1 {
		t.Errorf("expected 1 invocation, got %d", profile.InvocationCount)
	}

	var becameHot bool
	for i := 0; i < 4; i++ {
		becameHot = p.RecordCall("+")
	}

	// Should become hot at exactly threshold
	if !becameHot {
		t.Error("intrinsic should become hot at threshold")
	}
	if !p.IsHot("+") {
		t.Error("IsHot should return true")
	}

	// Additional calls should not re-trigger hot
	if p.RecordCall("+") {
		t.Error("intrinsic should not re-trigger hot")
	}
}

func TestProfilerOnHotCallback(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 2

	var hot []string
	p.OnHot = func(profile *CallProfile) { hot = append(hot, profile.Name) }

	p.RecordCall("echo")
	p.RecordCall("echo")
	p.RecordCall("echo")
	if len(hot) != 1 || hot[0] != "echo" {
		t.Errorf("OnHot called with %v", hot)
	}
}

func TestProfilerUnnamedCall(t *testing.T) {
	p := NewProfiler()
	p.RecordCall("")
	if p.Profile("<intrinsic>") == nil {
		t.Error("unnamed call not counted under <intrinsic>")
	}
}

func TestProfilerStatsAndTop(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 3
	for i := 0; i < 3; i++ {
		p.RecordCall("*")
	}
	p.RecordCall("list")
	p.RecordCall("echo")

	stats := p.Stats()
	if stats.Intrinsics != 3 || stats.Hot != 1 || stats.TotalInvocations != 5 {
		t.Errorf("Stats = %+v", stats)
	}

	top := p.Top(2)
	if len(top) != 2 || top[0].Name != "*" || top[1].Name != "echo" {
		t.Errorf("Top(2) = %+v", top)
	}
	if len(p.Top(10)) != 3 {
		t.Errorf("Top(10) returned %d entries", len(p.Top(10)))
	}

	p.Reset()
	if p.Stats().Intrinsics != 0 || p.Profile("*") != nil {
		t.Error("Reset left profiles behind")
	}
}

func TestProfilerConcurrentCalls(t *testing.T) {
	p := NewProfiler()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.RecordCall("+")
			}
		}()
	}
	wg.Wait()
	if got := p.Profile("+").InvocationCount; got != 1000 {
		t.Errorf("expected 1000 invocations, got %d", got)
	}
}

func TestProfilerConcurrentHotTransition(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 50

	var mu sync.Mutex
	var hot []*CallProfile
	p.OnHot = func(profile *CallProfile) {
		mu.Lock()
		hot = append(hot, profile)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	var transitions [8]int
	for i := range transitions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if p.RecordCall("*") {
					transitions[i]++
				}
				p.IsHot("*")
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range transitions {
		total += n
	}
	if total != 1 {
		t.Errorf("RecordCall reported %d hot transitions, want 1", total)
	}
	if len(hot) != 1 || !hot[0].IsHot || hot[0].InvocationCount < p.HotThreshold {
		t.Errorf("OnHot calls = %+v", hot)
	}
	if got := p.Stats().Hot; got != 1 {
		t.Errorf("Stats().Hot = %d, want 1", got)
	}

	p.Reset()
	if got := p.Stats().Hot; got != 0 {
		t.Errorf("Stats().Hot after Reset = %d", got)
	}
}

func TestInterpreterProfilesSyscalls(t *testing.T) {
	f := newFixture(t)
	f.in.Profiler = NewProfiler()
	f.call(t, "+", 1)
	f.call(t, "+", 2)
	f.call(t, "list", 3)

	if _, err := f.in.Execute(f.code); err != nil {
		t.Fatal(err)
	}
	if got := f.in.Profiler.Profile("+").InvocationCount; got != 2 {
		t.Errorf("+ called %d times, want 2", got)
	}
	if got := f.in.Profiler.Stats().TotalInvocations; got != 3 {
		t.Errorf("total calls = %d, want 3", got)
	}
}
