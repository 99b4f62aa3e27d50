package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	bus.Publish(Event{Topic: "task.completed", Data: 42})

	select {
	case e := <-ch:
		assert.Equal(t, "task.completed", e.Topic)
		assert.Equal(t, 42, e.Data)
		assert.False(t, e.Time.IsZero())
		assert.NotEmpty(t, e.CorrelationID, "publish assigns a correlation id when missing")
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestTopicFilter(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(4, "task.deleted")
	defer unsub()

	bus.Publish(Event{Topic: "task.completed"})
	bus.Publish(Event{Topic: "task.deleted"})

	e := <-ch
	assert.Equal(t, "task.deleted", e.Topic)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %q", extra.Topic)
	default:
	}
}

func TestCorrelationIDPreserved(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Topic: "x", CorrelationID: "corr-1"})
	e := <-ch
	assert.Equal(t, "corr-1", e.CorrelationID)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Topic: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// The buffered event is still there.
	require.NotEmpty(t, ch)
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(1)
	unsub()
	unsub() // idempotent

	assert.NotPanics(t, func() { bus.Publish(Event{Topic: "x"}) })

	_, open := <-ch
	assert.False(t, open, "channel is closed after unsubscribe")
}
