package redisstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPublisherOverChannel(t *testing.T) {
	bus, err := BuildBus(Settings{})
	require.NoError(t, err)
	defer func() { _ = bus.Close() }()
	require.Equal(t, DefaultTopic, bus.Topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []SnapshotMessage
	done := make(chan error, 1)
	go func() {
		done <- Consume(ctx, bus.Subscriber, bus.Topic, func(m SnapshotMessage) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, m)
		})
	}()

	pub := NewSnapshotPublisher(bus.Publisher, bus.Topic)
	snap := assembler.Snapshot{Seq: 3, RequestID: "req-1", Outcome: assembler.OutcomeFinal}
	snap.TextContent = "Hi"
	snap.IsTerminal = true

	// the subscription starts asynchronously; publish until it is seen
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Record(ctx, "conv-1", snap))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	m := got[0]
	mu.Unlock()
	require.Equal(t, "conv-1", m.ConvID)
	require.Equal(t, "req-1", m.RequestID)
	require.Equal(t, 3, m.Seq)
	require.Equal(t, "final", m.Outcome)
	require.Equal(t, "Hi", m.Snapshot["text_content"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{Addr: "redis:6379"}.WithDefaults()
	require.Equal(t, "redis:6379", s.Addr)
	require.Equal(t, DefaultTopic, s.Topic)
	require.Equal(t, DefaultGroup, s.Group)
	require.Equal(t, DefaultConsumer, s.Consumer)
}
