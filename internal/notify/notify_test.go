package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisNotifier_Notify(t *testing.T) {
	mr, client := newRedis(t)
	n := NewRedisNotifier(client, "")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := n.Notify(ctx, "u-v", EventPostUnhidden, map[string]string{"post_id": "p1"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	items, err := mr.List(DefaultQueue)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue has %d items, want 1", len(items))
	}

	e, err := DecodeEvent([]byte(items[0]))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if e.UserID != "u-v" || e.Kind != EventPostUnhidden || e.Payload["post_id"] != "p1" {
		t.Errorf("unexpected event %+v", e)
	}
	if !e.OccurredAt.Equal(fixed) {
		t.Errorf("OccurredAt = %v, want %v", e.OccurredAt, fixed)
	}
}

func TestRedisNotifier_ConnectionFailure(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	n := NewRedisNotifier(client, "q")
	if err := n.Notify(context.Background(), "u1", EventPostUnhidden, nil); err == nil {
		t.Fatal("expected error when Redis is down")
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Fatal("expected error for invalid CBOR")
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, _ EventKind, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID)
	if r.fail[userID] {
		return errors.New("queue full")
	}
	return nil
}

func TestBroadcaster_Broadcast(t *testing.T) {
	rec := &recordingNotifier{fail: map[string]bool{"u-bad": true}}
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b := NewBroadcaster(rec, metrics)

	sent := b.Broadcast(context.Background(), []string{"u1", "u1", "", "u-bad", "u2"}, EventPostUnhidden, nil)
	if sent != 2 {
		t.Errorf("Broadcast() = %d, want 2", sent)
	}
	if len(rec.calls) != 3 {
		t.Errorf("notifier called %d times, want 3 (deduplicated, empty skipped)", len(rec.calls))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != MetricNotificationsTotal {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" {
					counts[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	if counts[StatusSent] != 2 || counts[StatusFailed] != 1 {
		t.Errorf("counters = %v, want sent=2 failed=1", counts)
	}
}

func TestBroadcaster_NilSafe(t *testing.T) {
	var b *Broadcaster
	if got := b.Broadcast(context.Background(), []string{"u1"}, EventPostUnhidden, nil); got != 0 {
		t.Errorf("nil Broadcaster sent %d", got)
	}
	if got := NewBroadcaster(NewLogNotifier(nil), nil).Broadcast(context.Background(), []string{"u1"}, EventRollResolved, map[string]string{"roll_id": "r1"}); got != 1 {
		t.Errorf("log broadcaster sent %d, want 1", got)
	}
}
