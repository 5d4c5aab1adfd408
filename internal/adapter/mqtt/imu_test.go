package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestDecodeIMU(t *testing.T) {
	a, m, err := DecodeIMU([]byte(`{"source":"left","ax":1,"ay":-2,"az":16384,"gx":0,"gy":0,"gz":0,"mx":120,"my":-40,"mz":300}`))
	require.NoError(t, err)
	assert.Equal(t, &models.Vector3{X: 1, Y: -2, Z: 16384}, a)
	assert.Equal(t, &models.Vector3{X: 120, Y: -40, Z: 300}, m)

	a, m, err = DecodeIMU([]byte(`{"mx":1,"my":2,"mz":3}`))
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NotNil(t, m)

	_, _, err = DecodeIMU([]byte(`{"gx":1}`))
	assert.ErrorIs(t, err, types.ErrMalformedMessage)
	_, _, err = DecodeIMU([]byte(`{"ax":70000,"ay":0,"az":0}`))
	assert.ErrorIs(t, err, types.ErrMalformedMessage)
}

func TestHandlerKeepsLatest(t *testing.T) {
	s := NewIMUSubscriber(Config{Topic: "sensors/imu"}, logger.Nop())
	accel := make(chan models.Vector3, 1)
	mag := make(chan models.Vector3, 1)
	h := s.Handler(context.Background(), accel, mag)

	h(nil, fakeMessage{topic: "sensors/imu", payload: []byte(`{"ax":1,"ay":0,"az":0,"mx":0,"my":1,"mz":0}`)})
	h(nil, fakeMessage{topic: "sensors/imu", payload: []byte(`{"ax":2,"ay":0,"az":0}`)})
	h(nil, fakeMessage{topic: "sensors/imu", payload: []byte(`not json`)})

	assert.Equal(t, models.Vector3{X: 2}, <-accel)
	assert.Equal(t, models.Vector3{Y: 1}, <-mag)
	assert.Empty(t, accel)
}

func TestHandlerStopsAfterCancel(t *testing.T) {
	s := NewIMUSubscriber(Config{}, logger.Nop())
	accel := make(chan models.Vector3, 1)
	mag := make(chan models.Vector3, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Handler(ctx, accel, mag)(nil, fakeMessage{payload: []byte(`{"ax":1,"ay":0,"az":0}`)})
	assert.Empty(t, accel)
}

func TestRunRetriesUntilCancelled(t *testing.T) {
	s := NewIMUSubscriber(Config{
		Broker:        "tcp://127.0.0.1:1",
		ClientID:      "geoengine-test",
		Topic:         "device/imu",
		RetryInterval: 10 * time.Millisecond,
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, make(chan models.Vector3, 1), make(chan models.Vector3, 1))
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("Run gave up on an unreachable broker: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewIMUSubscriberDefaultsRetryInterval(t *testing.T) {
	s := NewIMUSubscriber(Config{}, logger.Nop())
	assert.Equal(t, defaultRetryInterval, s.cfg.RetryInterval)
}
