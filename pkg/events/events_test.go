package events

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEmitterPublishesOnInMemoryPubSub(t *testing.T) {
	ps := NewInMemory(zerolog.Nop())
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, err := ps.Subscriber.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	em := NewEmitter(ps.Publisher, "", "acme", zerolog.Nop())
	em.Emit(ctx, TypeChatChunk, "u-1", "Hel")
	em.Emit(ctx, TypeChatDone, "u-1", "")

	var got []Event
	for len(got) < 2 {
		select {
		case msg := <-msgs:
			ev, err := Decode(msg)
			require.NoError(t, err)
			require.Equal(t, string(ev.Type), msg.Metadata.Get("type"))
			got = append(got, ev)
			msg.Ack()
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}
	// gochannel fans out each message on its own goroutine, so order is not asserted.
	byType := map[Type]Event{}
	for _, ev := range got {
		byType[ev.Type] = ev
	}
	require.Len(t, byType, 2)
	require.Equal(t, "Hel", byType[TypeChatChunk].Content)
	require.Equal(t, "acme", byType[TypeChatChunk].ChatbotSlug)
	require.Equal(t, "u-1", byType[TypeChatDone].UserID)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &failingPublisher{}
	em := NewEmitter(pub, "custom", "acme", zerolog.Nop())
	em.Emit(context.Background(), TypeChatError, "", "boom")
	require.Equal(t, 1, pub.calls)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var em *Emitter
	em.Emit(context.Background(), TypeChatCreated, "", "")
}

func TestBuildDefaultsToInMemory(t *testing.T) {
	ps, err := Build(Settings{})
	require.NoError(t, err)
	require.NotNil(t, ps.Publisher)
	require.NoError(t, ps.Close())

	_, err = Build(Settings{Enabled: true})
	require.Error(t, err)
}

func TestPubSubSubscribeInMemory(t *testing.T) {
	ps := NewInMemory(zerolog.Nop())
	t.Cleanup(func() { _ = ps.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgs, err := ps.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	NewEmitter(ps.Publisher, "topic-a", "acme", zerolog.Nop()).Emit(ctx, TypeConfigLoaded, "", "")

	select {
	case msg := <-msgs:
		ev, err := Decode(msg)
		require.NoError(t, err)
		require.Equal(t, TypeConfigLoaded, ev.Type)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisFollowerStartsAtTail(t *testing.T) {
	addr := os.Getenv("CHATBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATBOT_TEST_REDIS_ADDR not set")
	}
	topic := "chatbot-test-" + watermill.NewUUID()
	group := "follower-" + watermill.NewUUID()

	ps, err := Build(Settings{Enabled: true, Addr: addr, Group: group})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	em := NewEmitter(ps.Publisher, topic, "acme", zerolog.Nop())
	em.Emit(ctx, TypeChatChunk, "", "before")

	msgs, err := ps.Subscribe(ctx, topic)
	require.NoError(t, err)
	em.Emit(ctx, TypeChatChunk, "", "after")

	select {
	case msg := <-msgs:
		ev, err := Decode(msg)
		require.NoError(t, err)
		require.Equal(t, "after", ev.Content)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, EnsureGroupAtTail(ctx, client, topic, group))
}
