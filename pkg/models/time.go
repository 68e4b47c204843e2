package models

import (
	"fmt"
	"time"

	"github.com/Etesie/fauna-typed/pkg/constants"
)

const dateLayout = "2006-01-02"

// TimeStub is an instant as exchanged with the service (tagged "@time").
type TimeStub struct {
	time.Time
}

func NewTimeStub(t time.Time) TimeStub {
	return TimeStub{t.UTC()}
}

func Now() TimeStub {
	return NewTimeStub(time.Now())
}

func ParseTimeStub(s string) (TimeStub, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return TimeStub{}, fmt.Errorf("%w: invalid time %q", constants.ErrMalformed, s)
	}
	return NewTimeStub(t), nil
}

// Equal reports whether both stubs denote the same instant.
func (t TimeStub) Equal(o TimeStub) bool {
	return t.Time.Equal(o.Time)
}

func (t TimeStub) String() string {
	return t.Format(time.RFC3339Nano)
}

// DateStub is a calendar date without time of day (tagged "@date").
type DateStub struct {
	time.Time
}

func NewDateStub(t time.Time) DateStub {
	y, m, d := t.Date()
	return DateStub{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func Today() DateStub {
	return NewDateStub(time.Now())
}

func ParseDateStub(s string) (DateStub, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return DateStub{}, fmt.Errorf("%w: invalid date %q", constants.ErrMalformed, s)
	}
	return DateStub{t}, nil
}

func (d DateStub) Equal(o DateStub) bool {
	return d.Time.Equal(o.Time)
}

func (d DateStub) String() string {
	return d.Format(dateLayout)
}
