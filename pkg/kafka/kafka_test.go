package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_PublishBatch(t *testing.T) {
	w := &fakeWriter{}
	reg := prometheus.NewRegistry()
	p, err := NewProducer(WithWriter(w), WithProducerRegisterer(reg))
	require.NoError(t, err)

	err = p.PublishBatch(context.Background(), "signals", []Message{
		{Key: []byte("a"), Value: map[string]int{"n": 1}, Headers: map[string]string{"type": "EXTREME_FEAR"}},
		{Key: []byte("b"), Value: "raw"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "signals", w.msgs[0].Topic)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "type", Value: []byte("EXTREME_FEAR")}}, w.msgs[0].Headers)
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("signals", "ok")))

	require.NoError(t, p.PublishBatch(context.Background(), "signals", nil))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), "signals", nil, "x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("signals", "error")))
}

func TestProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestProducer_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewProducer(WithWriter(&fakeWriter{}), WithProducerRegisterer(reg))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		_, _ = NewProducer(WithWriter(&fakeWriter{}), WithProducerRegisterer(reg))
	})
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type funcHandler struct {
	topic string
	fn    func([]byte) error
}

func (h funcHandler) Topic() string                            { return h.topic }
func (h funcHandler) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func TestConsumer_HandlesAndCommits(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	c, err := NewConsumer(
		WithReaderFactory(func(string) Reader { return reader }),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
		WithConsumerRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	attempts := 0
	c.RegisterHandler(funcHandler{topic: "ticks", fn: func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if string(b) == "flaky" {
			attempts++
			if attempts < 2 {
				return errors.New("try again")
			}
		}
		seen = append(seen, string(b))
		return nil
	}})

	require.NoError(t, c.Start(context.Background()))
	reader.msgs <- kafka.Message{Offset: 1, Value: []byte("one")}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte("flaky")}

	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "flaky"}, seen)
	assert.Equal(t, 2, attempts)
}

func TestConsumer_FailedMessageWithoutDLQIsNotCommitted(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 1)}
	c, err := NewConsumer(
		WithReaderFactory(func(string) Reader { return reader }),
		WithConsumerRetry(1, time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)

	handled := make(chan struct{}, 4)
	c.RegisterHandler(funcHandler{topic: "ticks", fn: func([]byte) error {
		handled <- struct{}{}
		panic("boom")
	}})
	require.NoError(t, c.Start(context.Background()))
	reader.msgs <- kafka.Message{Offset: 7, Value: []byte("bad")}

	// first attempt plus one retry
	for i := 0; i < 2; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatal("handler not retried")
		}
	}
	require.NoError(t, c.Stop(context.Background()))
	assert.Empty(t, reader.Committed())
}

func TestConsumer_StartWithoutHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
	assert.NoError(t, c.Stop(context.Background()))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}
