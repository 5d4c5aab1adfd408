package dto

import "github.com/BlowhardChen/diyue-geoengine/internal/domain/types"

type LinkStateReq struct {
	State string `json:"state" validate:"required,oneof=UNLINKED ONLINE OFFLINE"`
}

func (r LinkStateReq) ToModel() types.DeviceLinkState {
	return types.DeviceLinkState(r.State)
}

type PermissionReq struct {
	Granted *bool `json:"granted" validate:"required"`
}

type LifecycleReq struct {
	Foreground *bool `json:"foreground" validate:"required"`
}
