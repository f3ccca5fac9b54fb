package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_DeliversToEverySubscriber(t *testing.T) {
	bus := NewBus()

	first, unsubFirst := bus.Subscribe()
	defer unsubFirst()
	second, unsubSecond := bus.Subscribe()
	defer unsubSecond()

	bus.Publish(Event{Type: TypeUserLoggedIn, ActorID: "user-1"})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case e := <-ch:
			assert.Equal(t, TypeUserLoggedIn, e.Type)
			assert.Equal(t, "user-1", e.ActorID)
			assert.NotEmpty(t, e.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestInMemoryBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	bus.Publish(Event{Type: TypeUserLoggedOut})
}

func TestInMemoryBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()

	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Event{Type: TypeTokenRefreshed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestClientIPContext(t *testing.T) {
	ctx := WithClientIP(context.Background(), "10.0.0.7")
	require.Equal(t, "10.0.0.7", ClientIPFromContext(ctx))
	assert.Empty(t, ClientIPFromContext(context.Background()))
}

func TestType_Failure(t *testing.T) {
	assert.True(t, TypeUserLoginFailed.Failure())
	assert.True(t, TypeTokenReuseDetected.Failure())
	assert.False(t, TypeUserLoggedIn.Failure())
}
