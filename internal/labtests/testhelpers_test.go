package labtests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/hmpv-lab-platform/internal/events"
	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
)

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type flakyBackend struct {
	*storage.MemoryBackend
	failPuts bool
	puts     int
}

func (f *flakyBackend) PutAll(ctx context.Context, records map[string][]byte) error {
	f.puts++
	if f.failPuts {
		return errors.New("disk full")
	}
	return f.MemoryBackend.PutAll(ctx, records)
}

type captureSink struct {
	mu     sync.Mutex
	events []events.CanonicalEvent
}

func (c *captureSink) Emit(_ context.Context, evt events.CanonicalEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureSink) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType())
	}
	return out
}

func sequentialIDs() func(string) string {
	var mu sync.Mutex
	n := 0
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-test-%d", prefix, n)
	}
}

func newTestStore(t *testing.T, backend storage.Backend, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	}
	s := NewStore(NewAdapter(backend), append(base, opts...)...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func validBooking() BookingInput {
	return BookingInput{
		TestID:       "test-1",
		PatientID:    "patient-123",
		PatientName:  "Test Patient",
		PatientEmail: "patient@test.com",
		DateTime:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Address:      "1 Main St",
	}
}
