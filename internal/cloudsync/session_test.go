package cloudsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"
)

func newTestManager(t *testing.T, store RecordStore, device string, opts ...Option) (*Manager, *shoppinglist.Store) {
	t.Helper()
	list, err := shoppinglist.NewStore("", nil)
	if err != nil {
		t.Fatal(err)
	}
	all := append([]Option{WithTriggers(Ticker{}, Ticker{})}, opts...)
	m := NewManager(store, config.CloudSyncConfig{DeviceName: device}, nil, all...)
	m.Bind(list)
	t.Cleanup(func() {
		m.Leave()
		m.Wait()
	})
	return m, list
}

func hostConnected(t *testing.T, m *Manager) string {
	t.Helper()
	code := m.GenerateCode()
	m.Wait()
	st := m.Snapshot()
	if st.Connection != Connected || st.Role != RoleHost {
		t.Fatalf("expected connected host, got %+v", st)
	}
	return code
}

func joinConnected(t *testing.T, m *Manager, code string) {
	t.Helper()
	m.Join(code)
	m.Wait()
	st := m.Snapshot()
	if st.Connection != Connected || st.Role != RoleJoiner {
		t.Fatalf("expected connected joiner, got %+v", st)
	}
}

func itemNames(items []shoppinglist.Item) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return strings.Join(names, ",")
}

func TestMakeCode(t *testing.T) {
	for _, tc := range []struct{ length, want int }{{6, 6}, {1, 1}, {0, 1}, {-3, 1}, {10, 10}} {
		code := makeCode(tc.length)
		if len(code) != tc.want {
			t.Fatalf("makeCode(%d) = %q, want %d digits", tc.length, code, tc.want)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("makeCode(%d) = %q has non-digit", tc.length, code)
			}
		}
	}
}

func TestDisconnectedMutationsMakeNoRemoteCalls(t *testing.T) {
	b := newMemBackend()
	m, list := newTestManager(t, b.as("d1"), "Phone")

	it := shoppinglist.NewItem("Milch", "")
	list.Add(it)
	list.Toggle(it.ID)
	list.ClearChecked()
	list.Remove(it.ID)
	m.ReconcileListNow(context.Background())
	m.ReconcileChatNow(context.Background())
	if err := m.SendChat("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	m.Wait()

	if n := b.totalCalls(); n != 0 {
		t.Fatalf("expected no remote calls, got %d (%v)", n, b.calls)
	}
	if st := m.Snapshot(); st.Connection != Disconnected || len(st.Chat) != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestHostAndJoinChatScenario(t *testing.T) {
	b := newMemBackend()
	host, _ := newTestManager(t, b.as("host"), "Host iPhone")
	joiner, _ := newTestManager(t, b.as("joiner"), "Joiner iPad")

	code := hostConnected(t, host)
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}
	if st := host.Snapshot(); st.Code != code || st.Zone != "lb-"+code {
		t.Fatalf("unexpected host state %+v", st)
	}
	mapping, ok := b.record(PublicZone, code)
	if !ok || mapping.Type != TypeShareCode {
		t.Fatalf("expected share code record, got %+v", mapping)
	}

	joinConnected(t, joiner, code)
	if st := joiner.Snapshot(); st.Zone != "lb-"+code || st.Code != code {
		t.Fatalf("unexpected joiner state %+v", st)
	}

	if err := joiner.SendChat("  Milk?  "); err != nil {
		t.Fatal(err)
	}
	joiner.Wait()
	host.ReconcileChatNow(context.Background())

	st := host.Snapshot()
	if len(st.Chat) != 1 || st.Chat[0].Text != "Milk?" || st.Chat[0].Sender != "Joiner iPad" {
		t.Fatalf("unexpected host chat %+v", st.Chat)
	}
	if len(st.Peers) != 1 || st.Peers[0] != "Joiner iPad" {
		t.Fatalf("unexpected peers %v", st.Peers)
	}
	if b.callCount("subscribe") < 2 {
		t.Fatalf("expected chat subscriptions for both devices, got %d", b.callCount("subscribe"))
	}
}

func TestJoinUnknownCodeFails(t *testing.T) {
	b := newMemBackend()
	m, _ := newTestManager(t, b.as("d1"), "Phone")

	m.Join("482913")
	m.Wait()

	st := m.Snapshot()
	if st.Connection != Disconnected || st.Zone != "" || st.Code != "" {
		t.Fatalf("expected disconnected, got %+v", st)
	}
	if st.LastError != "join failed: invalid or unknown code" {
		t.Fatalf("unexpected error %q", st.LastError)
	}
}

func TestJoinMalformedCodeRecordFails(t *testing.T) {
	b := newMemBackend()
	b.put(Record{Zone: PublicZone, ID: "111111", Type: TypeShareCode, Fields: map[string]any{"other": "x"}})
	m, _ := newTestManager(t, b.as("d1"), "Phone")

	m.Join("111111")
	m.Wait()
	if st := m.Snapshot(); st.LastError != "join failed: invalid or unknown code" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestBlankJoinIsNoop(t *testing.T) {
	b := newMemBackend()
	m, _ := newTestManager(t, b.as("host"), "Phone")
	code := hostConnected(t, m)
	before := b.totalCalls()

	m.Join("")
	m.Join("   ")
	m.Wait()

	st := m.Snapshot()
	if st.Connection != Connected || st.Code != code || st.Role != RoleHost {
		t.Fatalf("expected session untouched, got %+v", st)
	}
	if after := b.totalCalls(); after != before {
		t.Fatalf("expected no remote calls, got %d", after-before)
	}
}

func TestHostFailureSetsError(t *testing.T) {
	b := newMemBackend()
	b.setFail("account", ErrUnauthorized)
	m, _ := newTestManager(t, b.as("d1"), "Phone")

	m.GenerateCode()
	m.Wait()

	st := m.Snapshot()
	if st.Connection != Disconnected || st.Role != RoleNone || st.Code != "" {
		t.Fatalf("expected disconnected, got %+v", st)
	}
	if st.LastError != "host failed: account unavailable" {
		t.Fatalf("unexpected error %q", st.LastError)
	}
}

func TestJoinWhileHostingTearsDownFirst(t *testing.T) {
	b := newMemBackend()
	other, _ := newTestManager(t, b.as("other"), "Tablet")
	code := hostConnected(t, other)

	blocked := make(chan struct{})
	var once sync.Once
	b.mu.Lock()
	b.gate = func(ctx context.Context, user string) error {
		first := false
		once.Do(func() { first = true })
		if !first {
			return nil
		}
		close(blocked)
		<-ctx.Done()
		return ctx.Err()
	}
	b.mu.Unlock()

	m, _ := newTestManager(t, b.as("me"), "Phone")
	hostCode := m.GenerateCode()
	<-blocked
	if st := m.Snapshot(); st.Connection != Hosting || st.Code != hostCode {
		t.Fatalf("expected hosting, got %+v", st)
	}

	joinConnected(t, m, code)

	st := m.Snapshot()
	if st.Zone != ZoneName(code) || st.LastError != "" {
		t.Fatalf("unexpected state after join %+v", st)
	}
	if hostCode != code && b.callCount("zone") != 1 {
		t.Fatalf("expected aborted host attempt to create no zone, got %d zone calls", b.callCount("zone"))
	}
}

func TestLeaveClearsSessionAndStopsLoops(t *testing.T) {
	b := newMemBackend()
	m, _ := newTestManager(t, b.as("host"), "Phone", WithTriggers(Ticker{Interval: 5 * time.Millisecond}, Ticker{Interval: 5 * time.Millisecond}))
	hostConnected(t, m)
	if err := m.SendChat("bye"); err != nil {
		t.Fatal(err)
	}
	m.Wait()
	time.Sleep(30 * time.Millisecond)
	if b.callCount("query:"+TypeChatMessage) < 2 {
		t.Fatal("expected chat loop to poll")
	}

	m.Leave()
	st := m.Snapshot()
	if st.Connection != Disconnected || st.Code != "" || st.Zone != "" || st.Role != RoleNone || len(st.Chat) != 0 || st.LastError != "" {
		t.Fatalf("expected cleared state, got %+v", st)
	}
	before := b.totalCalls()
	time.Sleep(30 * time.Millisecond)
	if after := b.totalCalls(); after != before {
		t.Fatalf("expected loops stopped, got %d more calls", after-before)
	}
}

func TestSubscribeReceivesCopies(t *testing.T) {
	b := newMemBackend()
	m, _ := newTestManager(t, b.as("host"), "Phone")

	var mu sync.Mutex
	var seen []ConnectionState
	cancel := m.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.Connection)
		mu.Unlock()
		st.Chat = append(st.Chat, ChatMessage{ID: "x"})
	})
	hostConnected(t, m)
	cancel()
	m.Leave()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[len(seen)-1] != Connected {
		t.Fatalf("expected hosting then connected, got %v", seen)
	}
	if len(m.Snapshot().Chat) != 0 {
		t.Fatal("observer mutation leaked into state")
	}
}

func TestWithClockStampsChat(t *testing.T) {
	b := newMemBackend()
	base := time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	clock := func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }
	m, _ := newTestManager(t, b.as("host"), "Phone", WithClock(clock))
	hostConnected(t, m)

	if err := m.SendChat("one"); err != nil {
		t.Fatal(err)
	}
	m.Wait()
	st := m.Snapshot()
	if len(st.Chat) != 1 || !st.Chat[0].Timestamp.After(base) {
		t.Fatalf("unexpected chat %+v", st.Chat)
	}
	rec, ok := b.record(st.Zone, st.Chat[0].ID)
	if !ok {
		t.Fatal("expected chat record")
	}
	if ts, _ := fieldInt64(rec.Fields, FieldTimestamp); ts != st.Chat[0].Timestamp.UnixMilli() {
		t.Fatalf("expected stored timestamp %d, got %d", st.Chat[0].Timestamp.UnixMilli(), ts)
	}
}
