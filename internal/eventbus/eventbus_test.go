package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor опрашивает условие до срабатывания или таймаута.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("условие не выполнилось за отведённое время")
}

// TestMemoryBusPublishSubscribe доставка события подписчику по фильтру типа
func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var got atomic.Int64
	_, err := bus.Subscribe(ctx, Filter{Types: []string{EventLandblockChanged}}, func(ctx context.Context, ev *Envelope) {
		got.Add(1)
	})
	require.NoError(t, err)

	ev, err := NewEnvelope("terrain", EventLandblockChanged, 5, LandblockChangedPayload{RegionID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ev))

	// Событие другого типа фильтр не пропускает
	other, err := NewEnvelope("terrain", EventLayerTreeChanged, 5, LayerTreeChangedPayload{RegionID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, other))

	waitFor(t, func() bool { return got.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), got.Load(), "чужой тип не доставлен")

	stats := bus.Metrics()
	assert.Equal(t, uint64(2), stats.Published)
}

// TestMemoryBusUnsubscribe после отписки события не доставляются
func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var got atomic.Int64
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		got.Add(1)
	})
	require.NoError(t, err)

	ev, err := NewEnvelope("test", EventDocumentSaved, 5, DocumentSavedPayload{RegionID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ev))
	waitFor(t, func() bool { return got.Load() == 1 })

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(ctx, ev))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), got.Load())
}

// TestMemoryBusDropsLowPriority при заполненном буфере события
// с приоритетом ниже 5 отбрасываются
func TestMemoryBusDropsLowPriority(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx := context.Background()

	// Без подписчиков буфер не разгребается мгновенно: забиваем его
	for i := 0; i < 50; i++ {
		ev, err := NewEnvelope("test", EventLandblockChanged, 1, LandblockChangedPayload{RegionID: 1})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, ev))
	}

	stats := bus.Metrics()
	assert.Greater(t, stats.Dropped, uint64(0), "низкий приоритет дропается при переполнении")
	bus.Close()
}

// TestEnvelopeFields служебные поля конверта заполняются
func TestEnvelopeFields(t *testing.T) {
	ev, err := NewEnvelope("terrain", EventLayerTreeChanged, 7, LayerTreeChangedPayload{RegionID: 3, LayerID: "l1"})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "terrain", ev.Source)
	assert.Equal(t, EventLayerTreeChanged, ev.EventType)
	assert.Equal(t, 7, ev.Priority)
	assert.False(t, ev.Timestamp.IsZero())
	assert.NotEmpty(t, ev.Payload)
}

// TestMemoryBusCloseUnblocksPublisher издатель, заблокированный на полном
// буфере, при закрытии шины получает ошибку, а не панику
func TestMemoryBusCloseUnblocksPublisher(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	_, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		close(started)
		<-release
	})
	require.NoError(t, err)

	// Первое событие занимает диспетчер, второе заполняет буфер
	first, err := NewEnvelope("terrain", EventLandblockChanged, 5, LandblockChangedPayload{RegionID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, first))
	<-started

	second, err := NewEnvelope("terrain", EventLandblockChanged, 5, LandblockChangedPayload{RegionID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, second))

	// Третье (high-priority) блокируется до закрытия шины
	published := make(chan error, 1)
	go func() {
		third, err := NewEnvelope("terrain", EventLandblockChanged, 9, LandblockChangedPayload{RegionID: 1})
		if err != nil {
			published <- err
			return
		}
		published <- bus.Publish(ctx, third)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bus.Close())

	select {
	case err := <-published:
		assert.ErrorIs(t, err, ErrBusClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("издатель не разблокировался после закрытия шины")
	}
	close(release)
}

// TestMemoryBusPublishAfterClose публикация в закрытую шину отклоняется
func TestMemoryBusPublishAfterClose(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "повторное закрытие — no-op")

	ev, err := NewEnvelope("terrain", EventDocumentSaved, 5, DocumentSavedPayload{RegionID: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrBusClosed)
}
