package state

import (
	"encoding/json"
	"math"
	"time"

	"github.com/teslashibe/go-presence/pkg/detection"
)

// TimeLayout is the human-readable timestamp written next to epoch times.
const TimeLayout = "2006-01-02 15:04:05"

// Presence is the current location estimate of the monitored person.
type Presence struct {
	Location     string
	InTargetZone bool
	Reason       string
	Score        *float64
	Time         time.Time
}

// Clone returns a deep copy.
func (p Presence) Clone() Presence {
	if p.Score != nil {
		s := *p.Score
		p.Score = &s
	}
	return p
}

// LastSeen is the most recent confident sighting of the tracked item.
// A zero value means the item has never been seen.
type LastSeen struct {
	Place      *string
	Time       *time.Time
	Confidence *float64
	Box        *detection.Box
	Label      *string
}

// IsZero reports whether nothing has been recorded.
func (l LastSeen) IsZero() bool {
	return l.Place == nil && l.Time == nil && l.Confidence == nil && l.Box == nil && l.Label == nil
}

// Clone returns a deep copy.
func (l LastSeen) Clone() LastSeen {
	if l.Place != nil {
		v := *l.Place
		l.Place = &v
	}
	if l.Time != nil {
		v := *l.Time
		l.Time = &v
	}
	if l.Confidence != nil {
		v := *l.Confidence
		l.Confidence = &v
	}
	if l.Box != nil {
		v := *l.Box
		l.Box = &v
	}
	if l.Label != nil {
		v := *l.Label
		l.Label = &v
	}
	return l
}

// Epoch converts t to fractional Unix seconds at microsecond precision.
func Epoch(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// FromEpoch is the inverse of Epoch.
func FromEpoch(sec float64) time.Time {
	return time.UnixMicro(int64(math.Round(sec * 1e6)))
}

// FormatTime renders t with TimeLayout in local time.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

type presenceJSON struct {
	Location  string   `json:"location"`
	IsKitchen bool     `json:"is_kitchen"`
	Reason    string   `json:"reason"`
	Score     *float64 `json:"score"`
	Time      *float64 `json:"time"`
	TimeISO   *string  `json:"time_iso"`
}

// MarshalJSON writes the flat record including the derived time_iso field.
func (p Presence) MarshalJSON() ([]byte, error) {
	out := presenceJSON{
		Location:  p.Location,
		IsKitchen: p.InTargetZone,
		Reason:    p.Reason,
		Score:     p.Score,
	}
	if !p.Time.IsZero() {
		sec := Epoch(p.Time)
		iso := FormatTime(p.Time)
		out.Time, out.TimeISO = &sec, &iso
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat record. Missing fields stay zero; time_iso is
// ignored in favour of the epoch value.
func (p *Presence) UnmarshalJSON(data []byte) error {
	var in presenceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Presence{
		Location:     in.Location,
		InTargetZone: in.IsKitchen,
		Reason:       in.Reason,
		Score:        in.Score,
	}
	if in.Time != nil {
		p.Time = FromEpoch(*in.Time)
	}
	return nil
}

type lastSeenJSON struct {
	Place   *string        `json:"place"`
	Time    *float64       `json:"time"`
	Conf    *float64       `json:"conf"`
	BBox    *detection.Box `json:"bbox"`
	Label   *string        `json:"label"`
	TimeISO *string        `json:"time_iso,omitempty"`
}

// MarshalJSON writes the flat record including time_iso when a time is set.
func (l LastSeen) MarshalJSON() ([]byte, error) {
	out := lastSeenJSON{
		Place: l.Place,
		Conf:  l.Confidence,
		BBox:  l.Box,
		Label: l.Label,
	}
	if l.Time != nil {
		sec := Epoch(*l.Time)
		iso := FormatTime(*l.Time)
		out.Time, out.TimeISO = &sec, &iso
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat record; missing fields read as nil.
func (l *LastSeen) UnmarshalJSON(data []byte) error {
	var in lastSeenJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*l = LastSeen{
		Place:      in.Place,
		Confidence: in.Conf,
		Box:        in.BBox,
		Label:      in.Label,
	}
	if in.Time != nil {
		t := FromEpoch(*in.Time)
		l.Time = &t
	}
	return nil
}
