// Package gps reads NMEA sentences from a serial GPS receiver and turns
// valid RMC fixes into location samples.
package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

// metresPerHDOP turns horizontal dilution of precision into a rough
// accuracy radius.
const metresPerHDOP = 5.0

type Config struct {
	PortName string
	BaudRate uint
}

// Opener opens the NMEA byte stream.
type Opener func() (io.ReadWriteCloser, error)

// SerialOpener opens the receiver's serial port.
func SerialOpener(cfg Config) Opener {
	return func() (io.ReadWriteCloser, error) {
		return serial.Open(serial.OpenOptions{
			PortName:              cfg.PortName,
			BaudRate:              cfg.BaudRate,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		})
	}
}

// Watcher implements a continuous GPS watch.
type Watcher struct {
	open  Opener
	clock clock.Clock
	l     logger.Logger
}

func NewWatcher(open Opener, clk clock.Clock, l logger.Logger) *Watcher {
	return &Watcher{open: open, clock: clk, l: l}
}

// Watch opens the port and streams fixes until ctx is cancelled. A failure
// to open or read the port is sent on the error channel and ends the watch.
func (w *Watcher) Watch(ctx context.Context) (<-chan models.LocationSample, <-chan error) {
	fixes := make(chan models.LocationSample, 1)
	errs := make(chan error, 1)

	ctx = wrap.WithSource(wrap.WithAction(ctx, types.ActionGPSWatch), types.SourceGPS.String())
	go func() {
		defer close(fixes)
		if err := w.run(ctx, fixes); err != nil && ctx.Err() == nil {
			errs <- err
		}
	}()
	return fixes, errs
}

func (w *Watcher) run(ctx context.Context, out chan models.LocationSample) error {
	const op = "gps.Watcher.run"

	port, err := w.open()
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: open port: %w", op, err))
	}

	// closing the port unblocks the pending read
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	w.l.Info(ctx, "gps watch started")

	var p Parser
	reader := bufio.NewReader(port)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return wrap.Error(ctx, fmt.Errorf("%s: read: %w", op, err))
		}

		c, accuracy, ok := p.Feed(line)
		if !ok {
			continue
		}

		metrics.LocationSamplesTotal.WithLabelValues(types.SourceGPS.String()).Inc()
		s := models.LocationSample{
			Coordinate:     c,
			Source:         types.SourceGPS,
			Timestamp:      w.clock.Now(),
			AccuracyMeters: accuracy,
		}

		// latest value wins: replace an unconsumed fix
		select {
		case <-out:
		default:
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return nil
		}
	}
}

// Parser keeps the state needed between sentences.
type Parser struct {
	hdop *float64
}

// Feed parses one line. It returns a fix for every valid RMC sentence;
// the accuracy comes from the latest GGA HDOP, if any.
func (p *Parser) Feed(line string) (models.Coordinate, *float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return models.Coordinate{}, nil, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// partial sentences are normal after opening the port
		return models.Coordinate{}, nil, false
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid || m.HDOP <= 0 {
			p.hdop = nil
			return models.Coordinate{}, nil, false
		}
		h := m.HDOP
		p.hdop = &h
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return models.Coordinate{}, nil, false
		}
		var accuracy *float64
		if p.hdop != nil {
			a := *p.hdop * metresPerHDOP
			accuracy = &a
		}
		return models.Coordinate{Lon: m.Longitude, Lat: m.Latitude}, accuracy, true
	}
	return models.Coordinate{}, nil, false
}
