// Package mqtt subscribes to raw IMU samples published by the sensor board
// and splits them into accelerometer and magnetometer streams.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const (
	disconnectQuiesce    = 250 // ms
	connectTimeout       = 10 * time.Second
	defaultRetryInterval = 5 * time.Second
)

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte

	RetryInterval time.Duration
}

// imuRaw is one raw IMU+mag sample as published by the sensor board.
type imuRaw struct {
	Ax *int16 `json:"ax"`
	Ay *int16 `json:"ay"`
	Az *int16 `json:"az"`

	Mx *int16 `json:"mx"`
	My *int16 `json:"my"`
	Mz *int16 `json:"mz"`
}

// DecodeIMU splits a raw sample. A sample may carry only one of the two
// vectors; the missing one is reported as absent.
func DecodeIMU(payload []byte) (accel, mag *models.Vector3, err error) {
	var raw imuRaw
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", types.ErrMalformedMessage, err)
	}
	if raw.Ax != nil && raw.Ay != nil && raw.Az != nil {
		accel = &models.Vector3{X: float64(*raw.Ax), Y: float64(*raw.Ay), Z: float64(*raw.Az)}
	}
	if raw.Mx != nil && raw.My != nil && raw.Mz != nil {
		mag = &models.Vector3{X: float64(*raw.Mx), Y: float64(*raw.My), Z: float64(*raw.Mz)}
	}
	if accel == nil && mag == nil {
		return nil, nil, fmt.Errorf("%w: no accelerometer or magnetometer axes", types.ErrMalformedMessage)
	}
	return accel, mag, nil
}

// IMUSubscriber feeds the heading estimator from an MQTT topic.
type IMUSubscriber struct {
	cfg Config
	l   logger.Logger
}

func NewIMUSubscriber(cfg Config, l logger.Logger) *IMUSubscriber {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	return &IMUSubscriber{cfg: cfg, l: l}
}

// Run connects, subscribes and blocks until ctx is done. An unreachable
// broker is retried every RetryInterval; the engine runs without heading
// meanwhile, so Run only returns on cancellation.
func (s *IMUSubscriber) Run(ctx context.Context, accel, mag chan models.Vector3) error {
	ctx = wrap.WithAction(ctx, types.ActionSensorRead)

	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c paho.Client) {
			s.subscribe(ctx, c, accel, mag)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.l.Warn(ctx, "mqtt connection lost", "error", err)
		})

	client := paho.NewClient(opts)
	if !s.connect(ctx, client) {
		return nil
	}

	<-ctx.Done()
	client.Unsubscribe(s.cfg.Topic).WaitTimeout(connectTimeout)
	client.Disconnect(disconnectQuiesce)
	return nil
}

// connect retries until the broker accepts the client. It reports false when
// ctx ends first.
func (s *IMUSubscriber) connect(ctx context.Context, client paho.Client) bool {
	const op = "mqtt.IMUSubscriber.connect"

	for attempt := 1; ; attempt++ {
		token := client.Connect()
		select {
		case <-ctx.Done():
			return false
		case <-token.Done():
		}
		if token.Error() == nil {
			return true
		}

		metrics.CollaboratorUnavailableTotal.WithLabelValues("mqtt").Inc()
		err := wrap.Error(ctx, fmt.Errorf("%s: %s: %w", op, s.cfg.Broker, token.Error()))
		s.l.Warn(ctx, "mqtt broker unreachable, heading paused", "attempt", attempt, "retry_in", s.cfg.RetryInterval, "error", err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.RetryInterval):
		}
	}
}

func (s *IMUSubscriber) subscribe(ctx context.Context, c paho.Client, accel, mag chan models.Vector3) {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.Handler(ctx, accel, mag))
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		s.l.Warn(ctx, "mqtt subscribe failed", "topic", s.cfg.Topic, "error", token.Error())
		return
	}
	s.l.Info(ctx, "subscribed to imu samples", "topic", s.cfg.Topic)
}

// Handler decodes every message and pushes the vectors without blocking
// the MQTT client. When a consumer lags, the oldest vector is replaced.
func (s *IMUSubscriber) Handler(ctx context.Context, accel, mag chan models.Vector3) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if ctx.Err() != nil {
			return
		}
		a, m, err := DecodeIMU(msg.Payload())
		if err != nil {
			s.l.Debug(ctx, "dropping imu sample", "topic", msg.Topic(), "error", err)
			return
		}
		if a != nil {
			pushLatest(accel, *a)
		}
		if m != nil {
			pushLatest(mag, *m)
		}
	}
}

func pushLatest(ch chan models.Vector3, v models.Vector3) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
