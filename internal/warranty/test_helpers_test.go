package warranty

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/proofguardlab/proofguard/internal/storage"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("item-%d", p.next), nil
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStore, *testClock) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := &testClock{now: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Store:      store,
		Clock:      clock.Now,
		IDProvider: &sequentialIDs{},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service, store, clock
}

func validDraft() Draft {
	return Draft{
		Name:        "Washing Machine",
		Shop:        "HomeMart",
		Kind:        "Appliance",
		Serial:      "WM-1000",
		BuyDate:     "2024-01-01",
		PeriodValue: 1,
		PeriodUnit:  PeriodUnitYears,
		RemindDays:  30,
	}
}

func mustCreate(t *testing.T, service *Service, draft Draft) Item {
	t.Helper()
	item, err := service.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return item
}

func mustUpdate(t *testing.T, service *Service, id string, draft Draft) Item {
	t.Helper()
	item, changed, err := service.Update(context.Background(), id, draft)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if !changed {
		t.Fatalf("expected update to be accepted")
	}
	return item
}
