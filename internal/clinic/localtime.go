package clinic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	LocalTimeLayout = "2006-01-02T15:04:05"
	DateLayout      = "2006-01-02"
)

// LocalTime is a wall-clock timestamp without a zone, the way the Medly API
// exchanges slot and window times. The wrapped time is always in UTC and its
// fields are read as local clock values.
type LocalTime struct {
	time.Time
}

func NewLocalTime(t time.Time) LocalTime {
	return LocalTime{Time: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)}
}

// ParseLocalTime accepts "2006-01-02T15:04:05", optional fractional seconds,
// minutes-only precision and a trailing "Z", which is ignored.
func ParseLocalTime(raw string) (LocalTime, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "Z")
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return NewLocalTime(t), nil
		}
	}
	return LocalTime{}, fmt.Errorf("parse local time %q", raw)
}

// Date returns the calendar date portion, used to group slots by day.
func (t LocalTime) Date() string {
	return t.Time.Format(DateLayout)
}

func (t LocalTime) String() string {
	return t.Time.Format(LocalTimeLayout)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(LocalTimeLayout))
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = LocalTime{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := ParseLocalTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
