package comms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aiswarm/orchestrator/errdefs"
)

type staticGroups map[string][]string

func (g staticGroups) Members(name string) ([]string, bool) {
	m, ok := g[name]
	return m, ok
}

type runFlag struct{ running atomic.Bool }

func (r *runFlag) Running() bool { return r.running.Load() }

func TestBus_Subscribe_Unsubscribe(t *testing.T) {
	bus := NewBus(Options{})
	ctx := context.Background()

	var received int32
	unsub := bus.Subscribe("agent-a", func(_ context.Context, _ *Message) error {
		atomic.AddInt32(&received, 1)
		return nil
	})

	_, found, err := bus.Send(ctx, "agent-a", "agent-b", "hello", TypeString)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !found {
		t.Error("expected a subscriber to be found")
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received = %d, want 1", received)
	}

	unsub()
	_, found, err = bus.Send(ctx, "agent-a", "agent-b", "hello", TypeString)
	if err != nil {
		t.Fatalf("Send after unsub: %v", err)
	}
	if found {
		t.Error("found = true after unsubscribe")
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received after unsub = %d, want 1", received)
	}
}

func TestBus_DeliveryOrder(t *testing.T) {
	groups := staticGroups{"team": {"alice", "bob"}}
	bus := NewBus(Options{Groups: groups})
	ctx := context.Background()

	var order []string
	record := func(name string) Handler {
		return func(_ context.Context, m *Message) error {
			if m.Target() != "team" {
				t.Errorf("%s saw target %q, want team", name, m.Target())
			}
			order = append(order, name)
			return nil
		}
	}
	bus.Subscribe(AllChannel, record("all"))
	bus.Subscribe("alice", record("alice"))
	bus.Subscribe("bob", record("bob"))

	_, found, err := bus.Send(ctx, "team", "user", "hi", TypeString)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !found {
		t.Error("group with subscribed members should report found")
	}
	want := []string{"all", "alice", "bob"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBus_TapDoesNotCountAsFound(t *testing.T) {
	bus := NewBus(Options{})
	var tapped int
	bus.Subscribe(AllChannel, func(context.Context, *Message) error {
		tapped++
		return nil
	})

	_, found, err := bus.Send(context.Background(), "nobody", "user", "hi", TypeString)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if found {
		t.Error("found = true with only the tap subscribed")
	}
	if tapped != 1 {
		t.Errorf("tapped = %d, want 1", tapped)
	}
}

func TestBus_MessageToAllDeliveredOnce(t *testing.T) {
	bus := NewBus(Options{})
	var n int
	bus.Subscribe(AllChannel, func(context.Context, *Message) error {
		n++
		return nil
	})

	_, found, err := bus.Send(context.Background(), AllChannel, "user", "hi", TypeString)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !found {
		t.Error("a direct subscriber on all should count as found")
	}
	if n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestBus_PausedRejects(t *testing.T) {
	state := &runFlag{}
	bus := NewBus(Options{State: state})

	_, _, err := bus.Send(context.Background(), "a", "b", "x", TypeString)
	if !errors.Is(err, errdefs.ErrIllegalState) {
		t.Fatalf("err = %v, want ErrIllegalState", err)
	}
	if bus.History().Len() != 0 {
		t.Error("rejected message must not reach history")
	}

	state.running.Store(true)
	if _, _, err := bus.Send(context.Background(), "a", "b", "x", TypeString); err != nil {
		t.Fatalf("Send while running: %v", err)
	}
}

func TestBus_InvalidTypeNotEmitted(t *testing.T) {
	bus := NewBus(Options{})
	_, _, err := bus.Send(context.Background(), "a", "b", "x", Type("hologram"))
	if !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if bus.History().Len() != 0 {
		t.Error("invalid message must not reach history")
	}
}

func TestBus_ReentrantEmitIsQueued(t *testing.T) {
	bus := NewBus(Options{})
	ctx := context.Background()

	var order []string
	bus.Subscribe("a", func(ctx context.Context, m *Message) error {
		order = append(order, "a:"+m.Content())
		if _, _, err := bus.Send(ctx, "b", "a", "from-a", TypeString); err != nil {
			return err
		}
		order = append(order, "a:done")
		return nil
	})
	bus.Subscribe("a", func(_ context.Context, m *Message) error {
		order = append(order, "a2:"+m.Content())
		return nil
	})
	bus.Subscribe("b", func(_ context.Context, m *Message) error {
		order = append(order, "b:"+m.Content())
		return nil
	})

	if _, _, err := bus.Send(ctx, "a", "user", "go", TypeString); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []string{"a:go", "a:done", "a2:go", "b:from-a"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	hist := bus.History().All(0)
	if len(hist) != 2 || hist[0].Content() != "go" || hist[1].Content() != "from-a" {
		t.Errorf("history out of order: %v", hist)
	}
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(Options{})
	var second bool
	bus.Subscribe("a", func(context.Context, *Message) error { return errors.New("boom") })
	bus.Subscribe("a", func(context.Context, *Message) error {
		second = true
		return nil
	})
	bus.Subscribe("a", func(context.Context, *Message) error { panic("worse") })

	if _, _, err := bus.Send(context.Background(), "a", "user", "x", TypeString); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !second {
		t.Error("second handler was not called")
	}

	// The bus must still be usable after a panicking handler.
	if _, _, err := bus.Send(context.Background(), "a", "user", "y", TypeString); err != nil {
		t.Fatalf("Send after panic: %v", err)
	}
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus(Options{})
	ctx := context.Background()

	var count int32
	bus.Subscribe("sink", func(context.Context, *Message) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = bus.Send(ctx, "sink", "src", "x", TypeString)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&count); got != 50 {
		t.Errorf("count = %d, want 50", got)
	}
	if got := bus.History().Len(); got != 50 {
		t.Errorf("history = %d, want 50", got)
	}
}

func TestBus_EmitEnvelopeMetadata(t *testing.T) {
	bus := NewBus(Options{})
	msg, _, err := bus.EmitEnvelope(context.Background(), Envelope{
		Target:   "a",
		Source:   "user",
		Content:  "x",
		Status:   StatusQueued,
		Metadata: map[string]any{"run": "r1"},
	})
	if err != nil {
		t.Fatalf("EmitEnvelope: %v", err)
	}
	if msg.Status() != StatusQueued {
		t.Errorf("status = %s, want queued", msg.Status())
	}
	if v, ok := msg.Metadata("run"); !ok || v != "r1" {
		t.Errorf("metadata run = %v, %v", v, ok)
	}
	if got := bus.History().BySource("user", 0); len(got) != 1 || got[0] != msg {
		t.Errorf("BySource = %v", got)
	}
}

func TestBus_EmitWaitsForOtherDispatcher(t *testing.T) {
	bus := NewBus(Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	bus.Subscribe("slow", func(context.Context, *Message) error {
		close(entered)
		<-release
		return nil
	})
	var delivered atomic.Bool
	bus.Subscribe("fast", func(context.Context, *Message) error {
		delivered.Store(true)
		return nil
	})

	go func() { _, _, _ = bus.Send(context.Background(), "slow", "a", "x", TypeString) }()
	<-entered

	returned := make(chan bool, 1)
	go func() {
		_, found, _ := bus.Send(context.Background(), "fast", "b", "y", TypeString)
		returned <- found && delivered.Load()
	}()

	select {
	case <-returned:
		t.Fatal("Send returned before its message was delivered")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	select {
	case ok := <-returned:
		if !ok {
			t.Error("Send returned without delivering")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return")
	}
}

func TestBus_EmitWaitHonoursContext(t *testing.T) {
	bus := NewBus(Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	bus.Subscribe("slow", func(context.Context, *Message) error {
		close(entered)
		<-release
		return nil
	})
	bus.Subscribe("fast", func(context.Context, *Message) error { return nil })

	go func() { _, _, _ = bus.Send(context.Background(), "slow", "a", "x", TypeString) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, found, err := bus.Send(ctx, "fast", "b", "y", TypeString)
	if err != nil || !found {
		t.Errorf("Send = %v, %v", found, err)
	}
}
