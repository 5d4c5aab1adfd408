package arbiter

import (
	"context"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
)

/*===================== Location sources ========================*/

// GPSWatcher starts a continuous watch. Both channels stop producing once
// ctx is cancelled. A value on the error channel ends the watch.
type GPSWatcher interface {
	Watch(ctx context.Context) (<-chan models.LocationSample, <-chan error)
}

// IPLocator performs one best-effort IP based lookup.
type IPLocator interface {
	Locate(ctx context.Context) (models.LocationSample, error)
}

/*===================== Output ========================*/

// Sink receives every canonical position. Place is called from the
// arbiter goroutine and must not block on I/O.
type Sink interface {
	Place(ctx context.Context, p models.Placement)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, p models.Placement)

func (f SinkFunc) Place(ctx context.Context, p models.Placement) { f(ctx, p) }

// Sinks fans a placement out to several sinks in order.
type Sinks []Sink

func (s Sinks) Place(ctx context.Context, p models.Placement) {
	for _, sink := range s {
		sink.Place(ctx, p)
	}
}
