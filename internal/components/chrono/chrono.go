package chrono

import "time"

// API is the interface that anything depending on the system clock should use.
type API interface {
	// Now returns the current time in the portal's timezone.
	Now() time.Time
	Location() *time.Location
}

// StandardImpl is the standard implementation of API, pinned to the timezone the
// portal prints its dates in.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl() (StandardImpl, error) {
	location, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always reports the same instant.
type FixedImpl struct {
	At time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.At
}

func (f FixedImpl) Location() *time.Location {
	return f.At.Location()
}

// the portal prints dates as 2006-01-02
const portalDateLayout = "2006-01-02"

// ParseDate parses a date cell as printed by the portal, in the location of the given clock.
func ParseDate(clock API, text string) (time.Time, error) {
	return time.ParseInLocation(portalDateLayout, text, clock.Location())
}
