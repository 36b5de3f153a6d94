package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type recordingJob struct {
	err  error
	seen []interface{}
}

func (j *recordingJob) Name() string { return "test job" }
func (j *recordingJob) Type() string { return "test.run" }
func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	j.seen = append(j.seen, payload)
	return j.err
}

func TestEnqueue_RequiresRunningQueue(t *testing.T) {
	db, _ := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{}, db, ModeProducerOnly)

	_, err := q.Enqueue(context.Background(), "test.run", tick{})
	assert.Error(t, err)
}

func TestEnqueue_PushesEnvelope(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	mock.Regexp().ExpectLPush("finscout:queue:messages", `"type":"test.run".*"payload":\{"symbol":"BTCUSDT","price":45000\}`).SetVal(1)

	q := NewRedisQueue(nil, Config{}, db, ModeProducerOnly)
	require.NoError(t, q.Start(context.Background()))

	id, err := q.Enqueue(context.Background(), "test.run", tick{Symbol: "BTCUSDT", Price: 45000})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
	require.NoError(t, q.Stop(context.Background()))
}

func TestStart_PingFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	q := NewRedisQueue(nil, Config{}, db, ModeProducerOnly)
	err := q.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestProcess_RetriesThenDeadLetters(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	q := NewRedisQueue(nil, Config{RetryLimit: 1, RetryDelay: 30 * time.Second, KeyPrefix: "t"}, db, ModeConsumerOnly)
	q.now = func() time.Time { return now }
	job := &recordingJob{err: errors.New("upstream down")}
	q.Register(job)

	msg := Message{ID: "m1", Type: "test.run", Payload: json.RawMessage(`{"symbol":"ETHUSDT","price":3000}`)}

	mock.Regexp().ExpectZAdd("t:retry", redis.Z{Score: float64(now.Add(30 * time.Second).Unix()), Member: `"attempts":1`}).SetVal(1)
	q.process(context.Background(), msg)

	msg.Attempts = 1
	mock.Regexp().ExpectLPush("t:dlq", `"id":"m1".*"attempts":2`).SetVal(1)
	q.process(context.Background(), msg)

	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, job.seen, 2)

	got, err := ParsePayload[tick](job.seen[0])
	require.NoError(t, err)
	assert.Equal(t, tick{Symbol: "ETHUSDT", Price: 3000}, *got)
}

func TestProcess_UnknownTypeIsDeadLettered(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{}, db, ModeConsumerOnly)

	mock.Regexp().ExpectLPush("finscout:queue:dlq", `"type":"nobody.home"`).SetVal(1)
	q.process(context.Background(), Message{ID: "x", Type: "nobody.home"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectLLen("finscout:queue:messages").SetVal(4)
	mock.ExpectZCard("finscout:queue:retry").SetVal(2)
	mock.ExpectLLen("finscout:queue:dlq").SetVal(1)

	q := NewRedisQueue(nil, Config{}, db, ModeProducerOnly)
	s, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 4, Retrying: 2, Dead: 1}, s)
}

func TestParsePayload(t *testing.T) {
	v := tick{Symbol: "BTCUSDT", Price: 1}

	got, err := ParsePayload[tick](v)
	require.NoError(t, err)
	assert.Equal(t, v, *got)

	got, err = ParsePayload[tick](&v)
	require.NoError(t, err)
	assert.Same(t, &v, got)

	got, err = ParsePayload[tick](map[string]interface{}{"symbol": "SOLUSDT", "price": 150.5})
	require.NoError(t, err)
	assert.Equal(t, tick{Symbol: "SOLUSDT", Price: 150.5}, *got)

	_, err = ParsePayload[tick](json.RawMessage(`{"price":"oops"}`))
	assert.Error(t, err)

	_, err = ParsePayload[tick](42)
	assert.Error(t, err)
}
