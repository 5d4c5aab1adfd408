package arbiter

import (
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

// event is the closed set of inputs consumed by the Run loop.
type event interface {
	isEvent()
}

type linkChanged struct{ state types.DeviceLinkState }

type permissionChanged struct{ granted bool }

type socketSample struct{ sample models.LocationSample }

type surfaceReady struct{}

// gpsFix, gpsFailed and ipResult carry the generation of the source run
// that produced them; results of a stopped run are discarded.
type gpsFix struct {
	gen    uint64
	sample models.LocationSample
}

type gpsFailed struct {
	gen uint64
	err error
}

type ipResult struct {
	gen    uint64
	sample models.LocationSample
	err    error
}

func (linkChanged) isEvent()       {}
func (permissionChanged) isEvent() {}
func (socketSample) isEvent()      {}
func (surfaceReady) isEvent()      {}
func (gpsFix) isEvent()            {}
func (gpsFailed) isEvent()         {}
func (ipResult) isEvent()          {}
