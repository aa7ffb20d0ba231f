package fleet

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the fleet for the dashboard header.
type Summary struct {
	Total        int       `json:"total"`
	Moving       int       `json:"moving"`
	Stale        int       `json:"stale"`
	MeanSpeedKMH float64   `json:"mean_speed_kmh"`
	StdSpeedKMH  float64   `json:"std_speed_kmh"`
	MaxSpeedKMH  float64   `json:"max_speed_kmh"`
	LastFix      time.Time `json:"last_fix,omitempty"`
}

// Summarize computes speed statistics over positions. A unit is moving at or
// above movingKMH and stale when its fix is older than staleAfter (zero
// disables the check).
func Summarize(ps []Position, movingKMH float64, staleAfter time.Duration, now time.Time) Summary {
	s := Summary{Total: len(ps)}
	if len(ps) == 0 {
		return s
	}
	speeds := make([]float64, len(ps))
	for i, p := range ps {
		speeds[i] = p.SpeedKMH
		if p.SpeedKMH >= movingKMH {
			s.Moving++
		}
		if staleAfter > 0 && now.Sub(p.Time) > staleAfter {
			s.Stale++
		}
		if p.Time.After(s.LastFix) {
			s.LastFix = p.Time
		}
	}
	s.MeanSpeedKMH = stat.Mean(speeds, nil)
	if len(speeds) > 1 {
		s.StdSpeedKMH = stat.StdDev(speeds, nil)
	}
	s.MaxSpeedKMH = floats.Max(speeds)
	return s
}
