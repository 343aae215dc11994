package tracing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAgentRoundTrip(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger()})

	a.SetCategories("x")
	AssertNoError(t, a.EmitInstant("E1", Category("x")))
	a.Stop()

	chunks := sink.Chunks()
	AssertEqual(t, 1, len(chunks))
	AssertEqual(t, 1, len(chunks[0]))
	AssertEqual(t, "E1", chunks[0][0].Name)
	AssertEqual(t, PhaseInstant, chunks[0][0].Phase)
	AssertEqual(t, "x", chunks[0][0].Group.Key())
}

func TestAgentSpanPairing(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger()})

	a.SetCategories("x")
	AssertNoError(t, a.EmitSpanBegin("S", "", Category("x")))
	AssertNoError(t, a.EmitSpanEnd("S", "", Category("x")))
	AssertNoError(t, a.EmitSpanBegin("T", "req-9", Category("x")))
	AssertNoError(t, a.EmitSpanEnd("T", "req-9", Category("x")))
	a.Stop()

	events := sink.Events()
	AssertEqual(t, 4, len(events))

	// With no explicit id, begin and end both carry the name as id.
	AssertEqual(t, PhaseBegin, events[0].Phase)
	AssertEqual(t, "S", events[0].ID)
	AssertEqual(t, PhaseEnd, events[1].Phase)
	AssertEqual(t, "S", events[1].ID)

	AssertEqual(t, "req-9", events[2].ID)
	AssertEqual(t, "req-9", events[3].ID)
}

func TestAgentCounter(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger()})

	a.SetCategories("x")
	AssertNoError(t, a.EmitCounter("heap", Category("x"), 1024))
	AssertNoError(t, a.EmitCounter("gc", Category("x"), map[string]any{
		"pause": 3, "count": 7, "zzz": 9, // truncated to the first two sorted keys
	}))

	err := a.EmitCounter("bad", Category("x"), "nope")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, have %v", err)
	}

	a.Stop()

	events := sink.Events()
	AssertEqual(t, 2, len(events))

	if diff := cmp.Diff([]Arg{{Name: "value", Value: 1024}}, events[0].Args); diff != "" {
		t.Errorf("scalar args (-want +have):\n%s", diff)
	}
	if diff := cmp.Diff([]Arg{{Name: "count", Value: 7}, {Name: "pause", Value: 3}}, events[1].Args); diff != "" {
		t.Errorf("map args (-want +have):\n%s", diff)
	}
}

func TestAgentLifecycle(t *testing.T) {
	t.Parallel()

	a := NewAgent(NewSliceSink(), Options{Logger: testLogger()})

	AssertEqual(t, Stopped, a.State())
	AssertEqual(t, false, a.IsStarted())

	a.Start()
	AssertEqual(t, Running, a.State())
	a.Start() // no-op
	AssertEqual(t, Running, a.State())

	a.Stop()
	AssertEqual(t, Stopped, a.State())
	a.Stop() // no-op
	AssertEqual(t, Stopped, a.State())
}

func TestAgentCategoriesDriveLifecycle(t *testing.T) {
	t.Parallel()

	a := NewAgent(NewSliceSink(), Options{Logger: testLogger()})

	// A non-empty set starts a stopped agent.
	AssertEqual(t, true, a.SetCategories("a", "b"))
	AssertEqual(t, Running, a.State())

	// An empty set stops it.
	AssertEqual(t, true, a.SetCategories())
	AssertEqual(t, Stopped, a.State())

	// The same via single-category toggles.
	AssertEqual(t, true, a.EnableCategory("a"))
	AssertEqual(t, Running, a.State())
	AssertEqual(t, true, a.DisableCategory("a"))
	AssertEqual(t, Stopped, a.State())

	// Configured names persist across an explicit stop and restart.
	a.SetCategories("a")
	a.Stop()
	if diff := cmp.Diff(EnabledSet{"a": false}, a.GetEnabledCategories()); diff != "" {
		t.Fatalf("stopped snapshot (-want +have):\n%s", diff)
	}
	a.Start()
	if diff := cmp.Diff(EnabledSet{"a": true}, a.GetEnabledCategories()); diff != "" {
		t.Fatalf("restarted snapshot (-want +have):\n%s", diff)
	}
}

func TestAgentEmitWhileStopped(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger()})

	// No error, no event: disabled categories make emission a no-op.
	AssertNoError(t, a.EmitInstant("E", Category("x")))
	AssertEqual(t, 0, len(sink.Chunks()))
	AssertEqual(t, uint64(0), a.Stats().Accepted)
}

func TestAgentEnabledFiltering(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger()})

	a.SetCategories("a")
	AssertNoError(t, a.EmitInstant("kept", Categories{"a", "b"})) // any member enables
	AssertNoError(t, a.EmitInstant("cut", Category("b")))
	a.Stop()

	events := sink.Events()
	AssertEqual(t, 1, len(events))
	AssertEqual(t, "kept", events[0].Name)
}

func TestAgentInvalidEmit(t *testing.T) {
	t.Parallel()

	a := NewAgent(NewSliceSink(), Options{Logger: testLogger()})
	a.SetCategories("x")
	defer a.Stop()

	for _, err := range []error{
		a.EmitInstant("", Category("x")),
		a.EmitInstant("E", Category("")),
		a.EmitInstant("E", nil),
		a.EmitSpanBegin("", "", Category("x")),
		a.EmitCounter("", Category("x"), 1),
	} {
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("want ErrInvalidArgument, have %v", err)
		}
	}
}

func TestAgentObserver(t *testing.T) {
	t.Parallel()

	var snaps []EnabledSet
	a := NewAgent(NewSliceSink(), Options{
		Logger:   testLogger(),
		Observer: func(set EnabledSet) { snaps = append(snaps, set) },
	})

	a.SetCategories("a")
	a.SetCategories("a") // unchanged: no notification
	a.EnableCategory("b")
	a.Stop()

	AssertEqual(t, 2, len(snaps))
	if diff := cmp.Diff(EnabledSet{"a": true}, snaps[0]); diff != "" {
		t.Errorf("first snapshot (-want +have):\n%s", diff)
	}
	if diff := cmp.Diff(EnabledSet{"a": true, "b": true}, snaps[1]); diff != "" {
		t.Errorf("second snapshot (-want +have):\n%s", diff)
	}
}

func TestAgentObserverReentrant(t *testing.T) {
	t.Parallel()

	// Observers run outside the agent's locks, so they may call back in.
	var (
		calls  int
		states []State
	)
	a := NewAgent(NewSliceSink(), Options{Logger: testLogger()})
	a.Observe(func(set EnabledSet) {
		calls++
		states = append(states, a.State())
		a.SetCategories("a") // no change: must not deadlock or re-notify
		_ = a.GetEnabledCategories()
	})

	a.SetCategories("a")
	a.Stop()

	AssertEqual(t, 1, calls)
	AssertEqual(t, Running, states[0])
}

func TestAgentFlush(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger(), ChunkSize: 100})

	a.SetCategories("x")
	AssertNoError(t, a.EmitInstant("E", Category("x")))
	a.Flush()

	// The partial chunk reaches the sink without stopping the agent.
	deadline := time.Now().Add(time.Second)
	for len(sink.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("flushed event never reached the sink")
		}
		time.Sleep(time.Millisecond)
	}
	AssertEqual(t, Running, a.State())

	a.Stop()
	AssertEqual(t, 1, len(sink.Events()))
}

func TestAgentSubscribe(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger()})
	a.SetCategories("a", "b")

	ctx, cancel := context.WithCancel(context.Background())

	var (
		ch      = make(chan Event, 16)
		statsc  = make(chan SubscriberStats, 1)
		allowed = func(ev Event) bool { return ev.Group.Key() == "a" }
	)
	go func() {
		stats, _ := a.Subscribe(ctx, allowed, ch)
		statsc <- stats
	}()

	// Give the subscriber a chance to register before publishing.
	deadline := time.Now().Add(time.Second)
	for a.broker.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	AssertNoError(t, a.EmitInstant("pass", Category("a")))
	AssertNoError(t, a.EmitInstant("skip", Category("b")))
	a.Flush()

	select {
	case ev := <-ch:
		AssertEqual(t, "pass", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	stats := <-statsc
	AssertEqual(t, uint64(1), stats.Sends)
	AssertEqual(t, uint64(1), stats.Skips)

	a.Stop()
}

func TestAgentStats(t *testing.T) {
	t.Parallel()

	sink := NewSliceSink()
	a := NewAgent(sink, Options{Logger: testLogger(), ChunkSize: 2})

	a.SetCategories("x")
	for i := 0; i < 5; i++ {
		AssertNoError(t, a.EmitInstant("E", Category("x")))
	}
	a.Stop()

	stats := a.Stats()
	AssertEqual(t, uint64(5), stats.Accepted)
	AssertEqual(t, uint64(0), stats.Dropped)
	AssertEqual(t, uint64(3), stats.Written) // two full chunks plus the final partial
	AssertEqual(t, uint64(0), stats.SinkErrors)
}

func TestAgentDisabledEmitAllocs(t *testing.T) {
	a := NewAgent(NewSliceSink(), Options{Logger: testLogger()})
	g := a.MustGroup(Category("off"))

	allocs := testing.AllocsPerRun(1000, func() {
		if err := a.EmitInstant("E", g); err != nil {
			t.Fatal(err)
		}
	})
	AssertEqual(t, 0.0, allocs)
}
