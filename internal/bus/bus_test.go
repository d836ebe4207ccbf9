package bus_test

import (
	"sync"
	"testing"
	"time"

	"github.com/craterhq/crater/internal/bus"
	"github.com/craterhq/crater/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testEvent() models.DomainEvent {
	return models.DomainEvent{
		Kind:       models.EventIssueCreated,
		IssueID:    uuid.New(),
		TenantID:   uuid.New(),
		OccurredAt: time.Now().UTC(),
	}
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := bus.New()

	var got []string
	b.Subscribe(func(_ models.DomainEvent) { got = append(got, "first") })
	b.Subscribe(func(_ models.DomainEvent) { got = append(got, "second") })

	b.Publish(testEvent())

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := bus.New()
	assert.NotPanics(t, func() { b.Publish(testEvent()) })
}

func TestPublish_PanickingSubscriberIsolated(t *testing.T) {
	b := bus.New()

	var delivered int
	b.Subscribe(func(_ models.DomainEvent) { panic("subscriber blew up") })
	b.Subscribe(func(_ models.DomainEvent) { delivered++ })

	assert.NotPanics(t, func() { b.Publish(testEvent()) })
	assert.Equal(t, 1, delivered)
}

func TestPublish_EachEventDeliveredOnce(t *testing.T) {
	b := bus.New()

	var kinds []string
	b.Subscribe(func(ev models.DomainEvent) { kinds = append(kinds, ev.Kind) })

	created := testEvent()
	resolved := testEvent()
	resolved.Kind = models.EventIssueResolved

	b.Publish(created)
	b.Publish(resolved)

	assert.Equal(t, []string{models.EventIssueCreated, models.EventIssueResolved}, kinds)
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	b := bus.New()

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(_ models.DomainEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(testEvent())
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, count)
}
