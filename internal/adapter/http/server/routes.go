package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/BlowhardChen/diyue-geoengine/docs"
)

// setupRoutes - setups http routes
func (a *API) setupRoutes() {
	// System Health
	a.mux.HandleFunc("GET /health", a.routes.health.HealthCheck)

	setupSwaggerRoutes(a.mux)
	setupMetricsRoute(a.mux)

	setupDeviceRoutes(a.mux, a.routes)
	setupMapRoutes(a.mux, a.routes)
	setupSurfaceRoutes(a.mux, a.routes)
}

// setupDeviceRoutes setups routes fed by the host application
func setupDeviceRoutes(mux *http.ServeMux, routes *handlers) {
	mux.HandleFunc("GET /api/v1/state", routes.device.GetState)                  // Engine state snapshot
	mux.HandleFunc("PUT /api/v1/device/link", routes.device.SetLink)             // Receiver link state
	mux.HandleFunc("PUT /api/v1/device/permission", routes.device.SetPermission) // Location permission
	mux.HandleFunc("PUT /api/v1/lifecycle", routes.device.SetLifecycle)          // Foreground / background
}

// setupMapRoutes setups drawing, track and enclosure routes
func setupMapRoutes(mux *http.ServeMux, routes *handlers) {
	mux.HandleFunc("PUT /api/v1/map/layer", routes.mapping.SetLayer)        // Switch basemap
	mux.HandleFunc("PUT /api/v1/map/center", routes.mapping.Center)         // Center the map
	mux.HandleFunc("POST /api/v1/map/commands", routes.mapping.SendCommand) // Relay a drawing command

	mux.HandleFunc("POST /api/v1/tracks/{owner_id}/points", routes.mapping.AppendTrackPoint) // Extend a track
	mux.HandleFunc("GET /api/v1/tracks/{owner_id}", routes.mapping.GetTrack)                 // Read a track
	mux.HandleFunc("DELETE /api/v1/tracks/{owner_id}", routes.mapping.ClearTrack)            // Clear a track
	mux.HandleFunc("DELETE /api/v1/tracks", routes.mapping.ClearTracks)                      // Clear every track

	mux.HandleFunc("GET /api/v1/enclosure", routes.mapping.GetEnclosure)                     // Enclosure with measurements
	mux.HandleFunc("POST /api/v1/enclosure/vertices", routes.mapping.AddVertex)              // Append a vertex
	mux.HandleFunc("PUT /api/v1/enclosure/vertices/{index}", routes.mapping.MoveVertex)      // Move a vertex
	mux.HandleFunc("DELETE /api/v1/enclosure/vertices/{index}", routes.mapping.RemoveVertex) // Remove a vertex
	mux.HandleFunc("DELETE /api/v1/enclosure", routes.mapping.ClearEnclosure)                // Clear the enclosure
}

func setupSurfaceRoutes(mux *http.ServeMux, routes *handlers) {
	mux.HandleFunc("GET /ws/surface", routes.surface.HandleWS) // WebSocket connection for the rendering surface
}

// setupSwaggerRoutes configures Swagger UI endpoints
func setupSwaggerRoutes(mux *http.ServeMux) {
	swaggerURL := httpSwagger.InstanceName(docs.InstanceName)
	mux.HandleFunc("/swagger/", httpSwagger.Handler(swaggerURL))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func setupMetricsRoute(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
