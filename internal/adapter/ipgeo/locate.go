package ipgeo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const (
	DefaultURL     = "http://ip-api.com/json/"
	DefaultTimeout = 5 * time.Second

	statusSuccess = "success"
)

type Client struct {
	url   string
	http  *http.Client
	clock clock.Clock
}

func New(url string, timeout time.Duration, clk clock.Clock) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:   url,
		http:  &http.Client{Timeout: timeout},
		clock: clk,
	}
}

type locationPayload struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Locate performs one lookup. Only status "success" responses are used.
func (c *Client) Locate(ctx context.Context) (models.LocationSample, error) {
	const op = "ipgeo.Client.Locate"
	ctx = wrap.WithSource(wrap.WithAction(ctx, types.ActionIPLookup), types.SourceIP.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return models.LocationSample{}, wrap.Error(ctx, fmt.Errorf("%s: build request: %w", op, err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.LocationSample{}, wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrLookupFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.LocationSample{}, wrap.Error(ctx, fmt.Errorf("%s: %w: unexpected response status %d", op, types.ErrLookupFailed, resp.StatusCode))
	}

	var payload locationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.LocationSample{}, wrap.Error(ctx, fmt.Errorf("%s: %w: decode response: %w", op, types.ErrLookupFailed, err))
	}
	if payload.Status != statusSuccess {
		return models.LocationSample{}, wrap.Error(ctx, fmt.Errorf("%s: %w: status %q %s", op, types.ErrLookupFailed, payload.Status, payload.Message))
	}

	metrics.LocationSamplesTotal.WithLabelValues(types.SourceIP.String()).Inc()
	return models.LocationSample{
		Coordinate: models.Coordinate{Lon: payload.Lon, Lat: payload.Lat},
		Source:     types.SourceIP,
		Timestamp:  c.clock.Now(),
	}, nil
}
