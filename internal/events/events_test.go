package events

import (
	"testing"
	"time"
)

func TestEmitDeliversToMatchingListeners(t *testing.T) {
	e := NewEmitter()

	var got []string
	e.AddListener(AuthSuccess, func(p string) { got = append(got, "success:"+p) })
	e.AddListener(AuthError, func(p string) { got = append(got, "error:"+p) })

	e.Emit(AuthSuccess, "{}")

	if len(got) != 1 || got[0] != "success:{}" {
		t.Errorf("got %v, want [success:{}]", got)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	e := NewEmitter()
	calls := 0
	sub := e.AddListener(AuthProgress, func(string) { calls++ })

	sub.Remove()
	sub.Remove()
	e.Emit(AuthProgress, "step")

	if calls != 0 {
		t.Errorf("removed listener called %d times", calls)
	}
	if n := e.ListenerCount(""); n != 0 {
		t.Errorf("ListenerCount = %d, want 0", n)
	}
}

func TestNewSubscriptionRunsOnce(t *testing.T) {
	n := 0
	sub := NewSubscription(func() { n++ })
	sub.Remove()
	sub.Remove()
	if n != 1 {
		t.Errorf("remove ran %d times, want 1", n)
	}

	var nilSub *Subscription
	nilSub.Remove()
}

func TestListenerMayRemoveItselfDuringEmit(t *testing.T) {
	e := NewEmitter()
	calls := 0
	var sub *Subscription
	sub = e.AddListener(AuthSuccess, func(string) {
		calls++
		sub.Remove()
	})

	e.Emit(AuthSuccess, "a")
	e.Emit(AuthSuccess, "b")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestListenerCountByEvent(t *testing.T) {
	e := NewEmitter()
	e.AddListener(AuthSuccess, func(string) {})
	e.AddListener(AuthSuccess, func(string) {})
	e.AddListener(AuthError, func(string) {})

	if n := e.ListenerCount(AuthSuccess); n != 2 {
		t.Errorf("success listeners = %d, want 2", n)
	}
	if n := e.ListenerCount(""); n != 3 {
		t.Errorf("all listeners = %d, want 3", n)
	}
}

func TestWatchReceivesAllEvents(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Watch()
	defer cancel()

	e.Emit(AuthProgress, "Initializing voice authentication")
	e.Emit(AuthError, "boom")

	for _, want := range []string{AuthProgress, AuthError} {
		select {
		case ev := <-ch:
			if ev.Name != want {
				t.Errorf("event = %s, want %s", ev.Name, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestWatchCancelStopsDelivery(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Watch()
	cancel()
	cancel()

	e.Emit(AuthError, "boom")
	select {
	case ev := <-ch:
		t.Errorf("unexpected event after cancel: %+v", ev)
	default:
	}
}
