package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacechat/internal/models"
)

func waitFor(t *testing.T, ch <-chan models.Message) models.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Message{}
	}
}

func TestBrokerDeliversToConversationSubscribers(t *testing.T) {
	broker := NewBroker(8)

	got := make(chan models.Message, 8)
	unsubscribe, err := broker.SubscribeInserts("conv-1", func(msg models.Message) {
		got <- msg
	}, nil)
	require.NoError(t, err)
	defer unsubscribe()

	other := make(chan models.Message, 8)
	unsubOther, err := broker.SubscribeInserts("conv-2", func(msg models.Message) {
		other <- msg
	}, nil)
	require.NoError(t, err)
	defer unsubOther()

	broker.PublishInsert(models.Message{ID: "m-1", ConversationID: "conv-1", Content: "hi"})

	msg := waitFor(t, got)
	assert.Equal(t, "m-1", msg.ID)

	select {
	case <-other:
		t.Fatal("event leaked to another conversation's subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker(8)

	a := make(chan models.Message, 8)
	b := make(chan models.Message, 8)
	unsubA, err := broker.SubscribeInserts("conv-1", func(msg models.Message) { a <- msg }, nil)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := broker.SubscribeInserts("conv-1", func(msg models.Message) { b <- msg }, nil)
	require.NoError(t, err)
	defer unsubB()

	broker.PublishInsert(models.Message{ID: "m-1", ConversationID: "conv-1"})

	assert.Equal(t, "m-1", waitFor(t, a).ID)
	assert.Equal(t, "m-1", waitFor(t, b).ID)
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewBroker(8)

	got := make(chan models.Message, 8)
	unsubscribe, err := broker.SubscribeInserts("conv-1", func(msg models.Message) { got <- msg }, nil)
	require.NoError(t, err)

	unsubscribe()
	require.Equal(t, 0, broker.SubscriberCount("conv-1"))

	broker.PublishInsert(models.Message{ID: "m-1", ConversationID: "conv-1"})
	select {
	case <-got:
		t.Fatal("received event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}

	// Unsubscribing twice is harmless.
	unsubscribe()
}

func TestBrokerRequiresConversationAndCallback(t *testing.T) {
	broker := NewBroker(8)

	_, err := broker.SubscribeInserts("", func(models.Message) {}, nil)
	assert.Error(t, err)

	_, err = broker.SubscribeInserts("conv-1", nil, nil)
	assert.Error(t, err)
}

func TestBrokerDropsSlowSubscriber(t *testing.T) {
	broker := NewBroker(1)

	block := make(chan struct{})
	var once sync.Once
	consuming := make(chan struct{})
	dropped := make(chan struct{})

	_, err := broker.SubscribeInserts("conv-1", func(models.Message) {
		once.Do(func() { close(consuming) })
		<-block
	}, func() {
		close(dropped)
	})
	require.NoError(t, err)
	defer close(block)

	// First event occupies the consumer, second fills the buffer, third
	// overflows and evicts the subscriber.
	broker.PublishInsert(models.Message{ID: "m-1", ConversationID: "conv-1"})
	<-consuming
	broker.PublishInsert(models.Message{ID: "m-2", ConversationID: "conv-1"})
	broker.PublishInsert(models.Message{ID: "m-3", ConversationID: "conv-1"})

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber was not dropped")
	}
	assert.Equal(t, 0, broker.SubscriberCount("conv-1"))
}
