// Package book defines the domain models for audiobooks, tracks, and chapters.
package book

import (
	"encoding/json"

	"github.com/samber/mo"
)

// Duration is the temporal length of a track, which may be unknown until the
// server reports it or the audio engine loads the file. The tagged
// representation prevents a genuine zero-length value from being confused with
// "not yet known".
type Duration struct {
	opt mo.Option[float64]
}

// KnownDuration constructs a Duration with a resolved second count.
func KnownDuration(seconds float64) Duration {
	return Duration{opt: mo.Some(seconds)}
}

// UnknownDuration constructs a Duration whose length has not been discovered yet.
func UnknownDuration() Duration {
	return Duration{opt: mo.None[float64]()}
}

// DurationFromSeconds interprets the wire convention of 0 (or negative) seconds as unknown.
func DurationFromSeconds(seconds float64) Duration {
	if seconds <= 0 {
		return UnknownDuration()
	}
	return KnownDuration(seconds)
}

// IsKnown reports whether the duration has been discovered.
func (d Duration) IsKnown() bool {
	return d.opt.IsPresent()
}

// Seconds returns the duration in seconds and whether it is known.
func (d Duration) Seconds() (float64, bool) {
	return d.opt.Get()
}

// OrZero returns the duration in seconds, collapsing unknown to 0 for wire formats.
func (d Duration) OrZero() float64 {
	return d.opt.OrElse(0)
}

// MarshalJSON encodes the duration using the 0-as-unknown wire convention.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.OrZero())
}

// UnmarshalJSON decodes the duration using the 0-as-unknown wire convention.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return err
	}
	*d = DurationFromSeconds(seconds)
	return nil
}
