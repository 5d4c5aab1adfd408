package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/BlowhardChen/diyue-geoengine/config"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/gps"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/http/server"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/ipgeo"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/mqtt"
	rabbitadapter "github.com/BlowhardChen/diyue-geoengine/internal/adapter/rabbit"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/rtk"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/surface"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/arbiter"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/bridge"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/channel"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/engine"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/geometry"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/heading"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
	"github.com/BlowhardChen/diyue-geoengine/pkg/rabbit"
	ws "github.com/BlowhardChen/diyue-geoengine/pkg/wsHub"
)

var ErrGPSDisabled = errors.New("gps receiver disabled")

// imuBuffer holds the latest vector per stream; older ones are replaced.
const imuBuffer = 1

// runner is a component with its own goroutine.
type runner struct {
	name string
	run  func(ctx context.Context) error
}

type App struct {
	hub        *ws.ConnectionHub
	bridge     *bridge.Bridge
	arbiter    *arbiter.Arbiter
	engine     *engine.Engine
	channel    *channel.Channel // nil when RTK is disabled
	rabbitMQ   *rabbit.RabbitMQ // nil when fan-out is disabled
	httpServer *server.API

	runners []runner

	cfg config.Config
	log logger.Logger
}

// NewApplication builds every component. Optional parts (RTK link, GPS
// receiver, MQTT sensors, RabbitMQ fan-out) are wired only when enabled.
func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	ctx = wrap.WithDeviceID(ctx, cfg.Device.IMEI)
	clk := clock.Real{}

	a := &App{cfg: cfg, log: log}

	// Rendering surface
	a.hub = ws.NewConnHub(log)
	sf := surface.New(a.hub, log)
	a.bridge = bridge.New(bridge.Config{
		QueueSize:     cfg.Surface.QueueSize,
		OffsetEnabled: cfg.Surface.OffsetEnabled,
		Layer:         types.LayerType(cfg.Surface.Layer),
		CustomURL:     cfg.Surface.CustomURL,
	}, sf, bridge.Callbacks{}, log)
	a.addRunner("bridge", a.bridge.Run)

	// Location sinks: the surface first, then the optional fan-out
	sinks := arbiter.Sinks{a.bridge}
	if cfg.RabbitMQ.Enabled {
		sinks = append(sinks, a.initRabbit(ctx))
	}

	// Location arbiter
	a.arbiter = arbiter.New(arbiter.Config{
		InitialLink:       cfg.Device.LinkState(),
		InitialPermission: cfg.Device.InitialPermission,
	}, gps.NewWatcher(a.gpsOpener(), clk, log),
		ipgeo.New(cfg.IPLookup.URL, cfg.IPLookup.Timeout, clk),
		sinks, log)
	a.addRunner("arbiter", a.arbiter.Run)

	// RTK connection channel
	var ch engine.Channel
	if cfg.RTK.Enabled {
		a.channel = a.initChannel(clk)
		ch = a.channel
	}

	// Heading from motion sensors
	var hd engine.HeadingSource
	if cfg.MQTT.Enabled {
		hd = a.initHeading(clk)
	}

	// Tracks and enclosure
	tracks := geometry.NewTrackBook(geometry.TrackConfig{
		MaxPoints:         cfg.Track.MaxPoints,
		SimplifyTolerance: cfg.Track.SimplifyTolerance,
	})
	tracks.OnCompact(func(owner uuid.UUID, before, after int) {
		metrics.TrackCompactionsTotal.Inc()
		log.Debug(ctx, "track compacted", "owner_id", owner, "before", before, "after", after)
	})

	a.engine = engine.New(a.arbiter, ch, hd, a.bridge, tracks, geometry.NewEnclosure(), log)
	a.bridge.SetCallbacks(a.surfaceCallbacks())

	httpServer, err := server.New(cfg.App, a.engine, a.engine, sf, a.bridge, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}
	a.httpServer = httpServer

	return a, nil
}

func (a *App) addRunner(name string, run func(ctx context.Context) error) {
	a.runners = append(a.runners, runner{name: name, run: run})
}

func (a *App) gpsOpener() gps.Opener {
	if !a.cfg.GPS.Enabled {
		return func() (io.ReadWriteCloser, error) { return nil, ErrGPSDisabled }
	}
	return gps.SerialOpener(gps.Config{
		PortName: a.cfg.GPS.Port,
		BaudRate: a.cfg.GPS.BaudRate,
	})
}

// initRabbit never fails: a broker that is down at startup is dialed again
// on the first publish, and positions are dropped until it answers.
func (a *App) initRabbit(ctx context.Context) *rabbitadapter.PositionPublisher {
	r, err := rabbit.New(ctx, a.cfg.RabbitMQ.GetDSN(), a.log)
	if err != nil {
		metrics.CollaboratorUnavailableTotal.WithLabelValues("rabbitmq").Inc()
		a.log.Warn(wrap.WithAction(ctx, types.ActionExternalServiceFailed), "rabbitmq unreachable, position fan-out deferred", "error", err)
		r = rabbit.NewLazy(a.cfg.RabbitMQ.GetDSN(), a.log)
	}
	a.rabbitMQ = r

	publisher := rabbitadapter.NewPositionPublisher(rabbitadapter.PositionConfig{
		Exchange:  a.cfg.RabbitMQ.Exchange,
		DeviceID:  a.cfg.Device.IMEI,
		SessionID: uuid.NewString(),
	}, r, a.log)
	a.addRunner("position_publisher", publisher.Run)

	return publisher
}

func (a *App) initChannel(clk clock.Clock) *channel.Channel {
	dialer := rtk.NewDialer(rtk.Config{
		BaseURL:          a.cfg.RTK.URL,
		Token:            a.cfg.RTK.Token,
		IMEI:             a.cfg.Device.IMEI,
		HandshakeTimeout: a.cfg.RTK.HandshakeTimeout,
	}, clk)

	push := func(ctx context.Context, s models.LocationSample) {
		if err := a.arbiter.PushSocketSample(ctx, s); err != nil {
			a.log.Warn(ctx, "socket sample dropped", "error", err)
		}
	}

	imei := a.cfg.Device.IMEI
	return channel.New(channel.Config{
		HeartbeatInterval: a.cfg.RTK.HeartbeatInterval,
		ReconnectDelay:    a.cfg.RTK.ReconnectDelay,
		MaxAttempts:       a.cfg.RTK.MaxAttempts,
	}, dialer, func() []byte { return rtk.HeartbeatFrame(imei) }, clk, channel.Handlers{
		OnMessage: rtk.NewMessageHandler(clk, a.log, push),
		OnStateChange: func(ctx context.Context, st channel.Status) {
			a.log.Debug(ctx, "rtk channel state", "state", st.State, "attempts", st.Attempts)
		},
		OnFailed: func(ctx context.Context, err error) {
			a.log.Error(wrap.WithAction(ctx, types.ActionRTKFailed), "rtk channel gave up", err)
			a.engine.NotifyConnectionFailed(ctx, err.Error())
		},
	}, a.log)
}

func (a *App) initHeading(clk clock.Clock) *heading.Estimator {
	est := heading.New(heading.Config{
		Throttle:          a.cfg.Heading.Throttle,
		MinCrossNorm:      a.cfg.Heading.MinCrossNorm,
		CalibrationOffset: a.cfg.Heading.CalibrationOffset,
	}, clk, a.bridge.EmitHeading, a.log)

	sub := mqtt.NewIMUSubscriber(mqtt.Config{
		Broker:   a.cfg.MQTT.Broker,
		ClientID: a.cfg.MQTT.ClientID,
		Username: a.cfg.MQTT.Username,
		Password: a.cfg.MQTT.Password,
		Topic:    a.cfg.MQTT.Topic,
		QoS:      a.cfg.MQTT.QoS,

		RetryInterval: a.cfg.MQTT.RetryInterval,
	}, a.log)

	accel := make(chan models.Vector3, imuBuffer)
	mag := make(chan models.Vector3, imuBuffer)
	a.addRunner("imu_subscriber", func(ctx context.Context) error {
		return sub.Run(ctx, accel, mag)
	})
	a.addRunner("heading", func(ctx context.Context) error {
		return est.Run(ctx, accel, mag)
	})
	return est
}

func (a *App) surfaceCallbacks() bridge.Callbacks {
	return bridge.Callbacks{
		OnReady: func(ctx context.Context) {
			if err := a.arbiter.SurfaceReady(ctx); err != nil {
				a.log.Warn(ctx, "arbiter did not take surface ready", "error", err)
			}
			a.engine.Redraw(ctx)
		},
		OnError: func(ctx context.Context, message string) {
			a.log.Warn(ctx, "rendering surface reported an error", "message", message)
		},
		OnNavigationComplete: func(ctx context.Context, payload json.RawMessage) {
			a.log.Info(ctx, "navigation polyline drawn", "bytes", len(payload))
		},
		OnConsoleLog: func(ctx context.Context, level, message string) {
			a.log.Debug(ctx, "surface console", "level", level, "message", message)
		},
	}
}

// Run starts every component and blocks until a shutdown signal or an HTTP
// server failure.
func (a *App) Run(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionEngineStarted)
	runCtx, cancel := context.WithCancel(ctx)

	// only the http server reports into errCh; a component that stops on its
	// own narrows the engine but does not end it
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	for _, r := range a.runners {
		wg.Go(func() {
			err := r.run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error(runCtx, "component stopped", fmt.Errorf("%s: %w", r.name, err), "component", r.name)
			}
		})
	}

	if a.channel != nil {
		a.channel.Open(runCtx)
	}
	a.httpServer.Run(runCtx, errCh)

	defer func() {
		a.close(ctx, cancel, &wg)
		a.log.Info(ctx, "geoengine closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	a.log.Info(ctx, "geoengine has been started", "runners", len(a.runners), "rtk", a.channel != nil)

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		a.log.Info(ctx, "shuting down application", "signal", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (a *App) close(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	ctx = wrap.WithAction(context.WithoutCancel(ctx), types.ActionEngineStopping)

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
	}

	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			a.log.Warn(ctx, "Failed to close rtk channel", "error", err.Error())
		}
	}

	// hijacked surface sockets are not closed by the http server
	a.hub.Close()

	cancel()
	wg.Wait()

	if a.rabbitMQ != nil {
		closeCtx, stop := context.WithTimeout(ctx, 5*time.Second)
		defer stop()
		if err := a.rabbitMQ.Close(closeCtx); err != nil {
			a.log.Warn(ctx, "Failed to close rabbitmq", "error", err.Error())
		}
	}
}
