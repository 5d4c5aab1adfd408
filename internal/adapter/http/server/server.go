package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BlowhardChen/diyue-geoengine/config"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/http/handler"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/http/middleware"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

const serverIPAddress = "%s:%s"

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers // routes/handlers
	m      *middleware.Middleware

	addr string
	cfg  config.AppConfig
	log  logger.Logger
}

type handlers struct {
	health  *handler.Health
	device  *handler.Device
	mapping *handler.Map
	surface *handler.Surface
}

func New(
	cfg config.AppConfig,
	deviceService handler.DeviceService,
	mapService handler.MapService,
	surfaceServer handler.SurfaceServer,
	surfaceInbound handler.SurfaceInbound,
	logger logger.Logger,
) (*API, error) {
	if deviceService == nil || mapService == nil {
		return nil, errors.New("device and map services are required")
	}
	if surfaceServer == nil || surfaceInbound == nil {
		return nil, errors.New("surface server is required")
	}

	addr := fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Port)

	api := &API{
		mux: http.NewServeMux(),
		routes: &handlers{
			health:  handler.NewHealth(cfg.Name, logger),
			device:  handler.NewDevice(deviceService, logger),
			mapping: handler.NewMap(mapService, logger),
			surface: handler.NewSurface(surfaceServer, surfaceInbound, logger),
		},
		m:    middleware.NewMiddleware(cfg.Name, logger),
		addr: addr,
		cfg:  cfg,
		log:  logger,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:              api.addr,
		Handler:           api.withMiddleware(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// Handler returns the routed mux wrapped in middleware.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// withMiddleware applies middlewares to the mux. Metrics sits inside Logging
// so it sees the route pattern the mux sets on the request.
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.Logging(a.m.Metrics(a.mux)))
}
