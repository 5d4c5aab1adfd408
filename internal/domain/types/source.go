package types

// LocationSource identifies which producer a LocationSample came from.
type LocationSource string

func (s LocationSource) String() string {
	return string(s)
}

const (
	SourceGPS    LocationSource = "GPS"
	SourceSocket LocationSource = "SOCKET"
	SourceIP     LocationSource = "IP"
)
