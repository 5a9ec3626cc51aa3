package examples

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// ErrInvalidSetpoint is returned for a malformed schedule entry.
var ErrInvalidSetpoint = errors.New("invalid setpoint")

// Setpoint is one schedule entry.
type Setpoint struct {
	At     time.Duration // offset from midnight
	Target float64
}

// String formats the setpoint as "07:30=21.5".
func (s Setpoint) String() string {
	h := int(s.At / time.Hour)
	m := int(s.At % time.Hour / time.Minute)
	return fmt.Sprintf("%02d:%02d=%g", h, m, s.Target)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSetpoint, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Schedule is an ordered list of setpoints.
type Schedule struct {
	meta.Base

	name      string
	enabled   bool
	setpoints []Setpoint
}

// NewSchedule creates an enabled, empty schedule.
func NewSchedule(name string) *Schedule {
	s := &Schedule{name: name, enabled: true}
	s.SetObjectName(name)
	return s
}

// MetaType implements meta.Typed.
func (s *Schedule) MetaType() *meta.Type { return ScheduleType }

// Name returns the schedule name.
func (s *Schedule) Name() string { return s.name }

// Enabled returns true if the schedule is active.
func (s *Schedule) Enabled() bool { return s.enabled }

// SetEnabled activates or deactivates the schedule.
func (s *Schedule) SetEnabled(enabled bool) {
	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	s.Emit(sigEnabledChanged, enabled)
}

// Setpoints returns a copy of the entries, ordered by time of day.
func (s *Schedule) Setpoints() []Setpoint {
	return slices.Clone(s.setpoints)
}

// Add inserts or replaces the setpoint at the given time of day.
func (s *Schedule) Add(at time.Duration, target float64) error {
	if at < 0 || at >= 24*time.Hour {
		return fmt.Errorf("%w: time %v out of range", ErrInvalidSetpoint, at)
	}
	i, found := slices.BinarySearchFunc(s.setpoints, at, func(sp Setpoint, at time.Duration) int {
		return int(sp.At - at)
	})
	if found {
		s.setpoints[i].Target = target
	} else {
		s.setpoints = slices.Insert(s.setpoints, i, Setpoint{At: at, Target: target})
	}
	s.Emit(sigEntriesChanged, s.entries())
	return nil
}

// Clear removes every setpoint.
func (s *Schedule) Clear() {
	if len(s.setpoints) == 0 {
		return
	}
	s.setpoints = nil
	s.Emit(sigEntriesChanged, s.entries())
}

// TargetAt returns the target in effect at the given time of day: the last
// setpoint at or before it, wrapping around midnight.
func (s *Schedule) TargetAt(at time.Duration) (float64, bool) {
	if len(s.setpoints) == 0 {
		return 0, false
	}
	current := s.setpoints[len(s.setpoints)-1]
	for _, sp := range s.setpoints {
		if sp.At > at {
			break
		}
		current = sp
	}
	return current.Target, true
}

func (s *Schedule) entries() []any {
	out := make([]any, len(s.setpoints))
	for i, sp := range s.setpoints {
		out[i] = sp.String()
	}
	return out
}

// ScheduleType describes Schedule.
var ScheduleType *meta.Type

var (
	sigEnabledChanged int
	sigEntriesChanged int
)

func init() {
	ScheduleType = meta.NewType("Schedule", nil).
		Signal("enabledChanged", meta.P("enabled", meta.KindBool)).
		Signal("entriesChanged", meta.P("entries", meta.KindList)).
		Method("add", meta.P("", meta.KindVoid), func(obj meta.Object, args []any) (any, error) {
			at, err := ParseTimeOfDay(args[0].(string))
			if err != nil {
				return nil, err
			}
			return nil, obj.(*Schedule).Add(at, args[1].(float64))
		}, meta.P("time", meta.KindString), meta.P("target", meta.KindFloat64)).
		Method("clear", meta.P("", meta.KindVoid), func(obj meta.Object, _ []any) (any, error) {
			obj.(*Schedule).Clear()
			return nil, nil
		}).
		Method("targetAt", meta.P("", meta.KindVariant), func(obj meta.Object, args []any) (any, error) {
			at, err := ParseTimeOfDay(args[0].(string))
			if err != nil {
				return nil, err
			}
			if target, ok := obj.(*Schedule).TargetAt(at); ok {
				return target, nil
			}
			return nil, nil
		}, meta.P("time", meta.KindString)).
		ConstantProperty("name", meta.P("name", meta.KindString),
			func(obj meta.Object) any { return obj.(*Schedule).name }).
		Property("enabled", meta.P("enabled", meta.KindBool), "enabledChanged",
			func(obj meta.Object) any { return obj.(*Schedule).enabled },
			func(obj meta.Object, v any) error {
				obj.(*Schedule).SetEnabled(v.(bool))
				return nil
			}).
		Property("entries", meta.P("entries", meta.KindList), "entriesChanged",
			func(obj meta.Object) any { return obj.(*Schedule).entries() },
			nil).
		MustBuild()
	sigEnabledChanged = ScheduleType.MustSignal("enabledChanged")
	sigEntriesChanged = ScheduleType.MustSignal("entriesChanged")
}
