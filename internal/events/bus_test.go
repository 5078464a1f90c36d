package events

import (
	"testing"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(models.OrchestrationEvent{Type: models.EventPlanStatus, PlanID: "p1"})
	bus.Publish(models.OrchestrationEvent{Type: models.EventStepCompleted, PlanID: "p1"})
	bus.Publish(models.OrchestrationEvent{Type: models.EventFinalAnswer, PlanID: "p1"})

	var got []models.OrchestrationEvent
	for i := 0; i < 3; i++ {
		got = append(got, <-ch)
	}
	if got[0].Type != models.EventPlanStatus || got[2].Type != models.EventFinalAnswer {
		t.Fatalf("unexpected order: %v, %v, %v", got[0].Type, got[1].Type, got[2].Type)
	}
	if !(got[0].Sequence < got[1].Sequence && got[1].Sequence < got[2].Sequence) {
		t.Fatalf("sequence not monotone: %d %d %d", got[0].Sequence, got[1].Sequence, got[2].Sequence)
	}
}

func TestBusSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(models.OrchestrationEvent{Type: models.EventStepCompleted})
	}

	first := <-ch
	if first.Sequence == 1 {
		t.Fatal("expected the oldest events to be dropped")
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(models.OrchestrationEvent{Type: models.EventFinalAnswer})
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after bus close")
	}
}
