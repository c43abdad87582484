package engine_test

import (
	"testing"

	"github.com/seantiz/gradbridge/internal/engine"
	"github.com/seantiz/gradbridge/internal/model"
)

func event(kind string) model.LifecycleEvent {
	return model.LifecycleEvent{ID: model.NewID(), Kind: kind, SessionID: "s1"}
}

func TestEventBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	b.Publish("s1", event(model.EventModelLoaded))
	b.Publish("s1", event(model.EventModelUnloaded))
	b.Close("s1")

	var got []string
	for e := range ch {
		got = append(got, e.Kind)
	}
	if len(got) != 2 || got[0] != model.EventModelLoaded || got[1] != model.EventModelUnloaded {
		t.Errorf("got %v, want [model_loaded model_unloaded]", got)
	}
}

func TestEventBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewEventBroker()
	ch1, unsub1 := b.Subscribe("s1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("s1")
	defer unsub2()

	b.Publish("s1", event(model.EventModelUnloaded))
	b.Close("s1")

	for i, ch := range []<-chan model.LifecycleEvent{ch1, ch2} {
		var n int
		for range ch {
			n++
		}
		if n != 1 {
			t.Errorf("subscriber %d got %d events, want 1", i+1, n)
		}
	}
}

func TestEventBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewEventBroker()
	b.Publish("s1", event(model.EventModelLoaded))
	b.Close("s1")

	ch, unsub := b.Subscribe("s1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestEventBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("s1")
	unsub()

	b.Publish("s1", event(model.EventModelLoaded))

	select {
	case e := <-ch:
		t.Errorf("received %+v after unsubscribe", e)
	default:
	}
}

func TestEventBrokerDropsForSlowSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	// Publishing past the buffer must not block.
	for range 100 {
		b.Publish("s1", event(model.EventModelLoaded))
	}
	b.Close("s1")

	var n int
	for range ch {
		n++
	}
	if n == 0 || n >= 100 {
		t.Errorf("received %d events, want some dropped but not all", n)
	}
}

func TestEventBrokerTopicsAreIsolated(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	b.Publish("s2", event(model.EventModelLoaded))
	b.Close("s1")

	if _, ok := <-ch; ok {
		t.Error("subscriber of s1 received an event published to s2")
	}
}
