package examples

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// Thermostat limits.
const (
	MinTarget = 5.0
	MaxTarget = 30.0

	// MaxBoost caps a boost request.
	MaxBoost = 120 * time.Minute

	boostDelta = 2.0
)

// Errors returned by Thermostat methods.
var (
	ErrTargetOutOfRange = errors.New("target out of range")
	ErrInvalidMode      = errors.New("invalid mode")
	ErrInvalidBoost     = errors.New("invalid boost duration")
	ErrBoostActive      = errors.New("boost already active")
	ErrBoostCancelled   = errors.New("boost cancelled")
)

// Mode is the operating mode of a thermostat.
type Mode int

// Operating modes.
const (
	ModeOff Mode = iota
	ModeHeat
	ModeCool
	ModeAuto
)

var modeNames = map[Mode]string{
	ModeOff:  "OFF",
	ModeHeat: "HEAT",
	ModeCool: "COOL",
	ModeAuto: "AUTO",
}

// String returns the mode name.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MODE(%d)", int(m))
}

// ParseMode parses a mode name as returned by String, case-sensitively.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid returns true for the declared modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Thermostat is a simulated room thermostat. All methods must be called on
// the loop passed to NewThermostat.
type Thermostat struct {
	meta.Base

	temperature float64
	target      float64
	mode        Mode
	schedules   []*Schedule

	boost      *meta.Future
	boostTimer *loop.Timer
	simTimer   *loop.Timer
}

// NewThermostat creates a thermostat living on l, heating towards 20°C.
func NewThermostat(l *loop.Loop) *Thermostat {
	t := &Thermostat{temperature: 18, target: 20, mode: ModeHeat}
	t.MoveToLoop(l)
	t.SetObjectName("thermostat")
	return t
}

// MetaType implements meta.Typed.
func (t *Thermostat) MetaType() *meta.Type { return ThermostatType }

// Temperature returns the measured room temperature.
func (t *Thermostat) Temperature() float64 { return t.temperature }

// Target returns the target temperature.
func (t *Thermostat) Target() float64 { return t.target }

// Mode returns the operating mode.
func (t *Thermostat) Mode() Mode { return t.mode }

// Schedules returns the schedules created so far.
func (t *Thermostat) Schedules() []*Schedule { return t.schedules }

// SetTemperature updates the measured temperature.
func (t *Thermostat) SetTemperature(v float64) {
	v = math.Round(v*10) / 10
	if t.temperature == v {
		return
	}
	t.temperature = v
	t.Emit(sigTemperatureChanged, v)
}

// SetTarget changes the target temperature.
func (t *Thermostat) SetTarget(v float64) error {
	if v < MinTarget || v > MaxTarget {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrTargetOutOfRange, v, MinTarget, MaxTarget)
	}
	if t.target == v {
		return nil
	}
	t.target = v
	t.Emit(sigTargetChanged, v)
	return nil
}

// SetMode changes the operating mode.
func (t *Thermostat) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	if t.mode == m {
		return nil
	}
	t.mode = m
	t.Emit(sigModeChanged, int(m))
	return nil
}

// RaiseAlarm emits the alarm signal.
func (t *Thermostat) RaiseAlarm(reason string) {
	t.Emit(sigAlarm, reason)
}

// CreateSchedule adds a named schedule and returns it.
func (t *Thermostat) CreateSchedule(name string) *Schedule {
	s := NewSchedule(name)
	s.MoveToLoop(t.Loop())
	t.schedules = append(t.schedules, s)
	return s
}

// Boost raises the target by two degrees for d. The returned future resolves
// with the restored target once the boost ends, or fails if the boost is
// cancelled or the thermostat is destroyed first.
func (t *Thermostat) Boost(d time.Duration) (*meta.Future, error) {
	if d <= 0 || d > MaxBoost {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBoost, d)
	}
	if t.boost != nil {
		return nil, ErrBoostActive
	}
	restore := t.target
	boosted := min(restore+boostDelta, MaxTarget)
	t.target = boosted
	t.Emit(sigTargetChanged, boosted)

	f := meta.NewFuture()
	t.boost = f
	t.boostTimer = t.Loop().AfterFunc(d, func() {
		t.endBoost()
		if t.target == boosted {
			t.target = restore
			t.Emit(sigTargetChanged, restore)
		}
		f.Resolve(t.target)
	})
	return f, nil
}

// CancelBoost ends a running boost early and keeps the boosted target.
func (t *Thermostat) CancelBoost() bool {
	f := t.boost
	if f == nil {
		return false
	}
	t.endBoost()
	f.Fail(ErrBoostCancelled)
	return true
}

// Boosting returns true while a boost is running.
func (t *Thermostat) Boosting() bool { return t.boost != nil }

func (t *Thermostat) endBoost() {
	if t.boostTimer != nil {
		t.boostTimer.Stop()
	}
	t.boost = nil
	t.boostTimer = nil
}

// Step advances the simulated room by one tick: the temperature moves a
// tenth of a degree towards the target when the mode allows it, and drifts
// towards 15°C when off.
func (t *Thermostat) Step() {
	const ambient = 15.0
	const step = 0.1

	temp := t.temperature
	switch t.mode {
	case ModeHeat:
		if temp < t.target {
			temp += step
		}
	case ModeCool:
		if temp > t.target {
			temp -= step
		}
	case ModeAuto:
		if temp < t.target {
			temp += step
		} else if temp > t.target {
			temp -= step
		}
	case ModeOff:
		if temp > ambient {
			temp -= step
		} else if temp < ambient {
			temp += step
		}
	}
	t.SetTemperature(temp)
	if t.mode != ModeOff && t.temperature >= MaxTarget+5 {
		t.RaiseAlarm("overheat")
	}
}

// StartSimulation calls Step every interval on the thermostat's loop until
// StopSimulation or Destroy.
func (t *Thermostat) StartSimulation(interval time.Duration) {
	t.StopSimulation()
	var tick func()
	tick = func() {
		if t.IsDestroyed() {
			return
		}
		t.Step()
		t.simTimer = t.Loop().AfterFunc(interval, tick)
	}
	t.simTimer = t.Loop().AfterFunc(interval, tick)
}

// StopSimulation stops a running simulation.
func (t *Thermostat) StopSimulation() {
	if t.simTimer != nil {
		t.simTimer.Stop()
		t.simTimer = nil
	}
}

// Destroy stops the simulation, fails a pending boost and destroys the
// thermostat's schedules before the thermostat itself.
func (t *Thermostat) Destroy() {
	if t.IsDestroyed() {
		return
	}
	t.StopSimulation()
	t.CancelBoost()
	for _, s := range t.schedules {
		s.Destroy()
	}
	t.schedules = nil
	t.Base.Destroy()
}

func (t *Thermostat) scheduleNames() []any {
	out := make([]any, len(t.schedules))
	for i, s := range t.schedules {
		out[i] = s.Name()
	}
	return out
}

// ThermostatType describes Thermostat.
var ThermostatType *meta.Type

var (
	sigTemperatureChanged int
	sigTargetChanged      int
	sigModeChanged        int
	sigAlarm              int
)

func init() {
	schedule := meta.Param{Kind: meta.KindObject, ObjectType: ScheduleType}

	ThermostatType = meta.NewType("Thermostat", nil).
		Signal("temperatureChanged", meta.P("temperature", meta.KindFloat64)).
		Signal("targetChanged", meta.P("target", meta.KindFloat64)).
		Signal("modeChanged", meta.P("mode", meta.KindInt)).
		Signal("alarm", meta.P("reason", meta.KindString)).
		Method("setTarget", meta.P("", meta.KindVoid), func(obj meta.Object, args []any) (any, error) {
			return nil, obj.(*Thermostat).SetTarget(args[0].(float64))
		}, meta.P("target", meta.KindFloat64)).
		Method("setTarget", meta.P("", meta.KindVoid), func(obj meta.Object, args []any) (any, error) {
			t := obj.(*Thermostat)
			if err := t.SetTarget(args[0].(float64)); err != nil {
				return nil, err
			}
			return nil, t.SetMode(Mode(args[1].(int)))
		}, meta.P("target", meta.KindFloat64), meta.P("mode", meta.KindInt)).
		Method("setMode", meta.P("", meta.KindVoid), func(obj meta.Object, args []any) (any, error) {
			m, err := ParseMode(args[0].(string))
			if err != nil {
				return nil, err
			}
			return nil, obj.(*Thermostat).SetMode(m)
		}, meta.P("mode", meta.KindString)).
		Method("boost", meta.P("", meta.KindFuture), func(obj meta.Object, args []any) (any, error) {
			return obj.(*Thermostat).Boost(time.Duration(args[0].(int)) * time.Minute)
		}, meta.P("minutes", meta.KindInt)).
		Method("cancelBoost", meta.P("", meta.KindBool), func(obj meta.Object, _ []any) (any, error) {
			return obj.(*Thermostat).CancelBoost(), nil
		}).
		Method("createSchedule", schedule, func(obj meta.Object, args []any) (any, error) {
			return obj.(*Thermostat).CreateSchedule(args[0].(string)), nil
		}, meta.P("name", meta.KindString)).
		Method("schedules", meta.P("", meta.KindList), func(obj meta.Object, _ []any) (any, error) {
			return obj.(*Thermostat).scheduleNames(), nil
		}).
		Property("temperature", meta.P("temperature", meta.KindFloat64), "temperatureChanged",
			func(obj meta.Object) any { return obj.(*Thermostat).temperature },
			nil).
		Property("target", meta.P("target", meta.KindFloat64), "targetChanged",
			func(obj meta.Object) any { return obj.(*Thermostat).target },
			func(obj meta.Object, v any) error {
				return obj.(*Thermostat).SetTarget(v.(float64))
			}).
		Property("mode", meta.P("mode", meta.KindInt), "modeChanged",
			func(obj meta.Object) any { return int(obj.(*Thermostat).mode) },
			func(obj meta.Object, v any) error {
				return obj.(*Thermostat).SetMode(Mode(v.(int)))
			}).
		ConstantProperty("unit", meta.P("unit", meta.KindString),
			func(meta.Object) any { return "celsius" }).
		Enum("Mode",
			meta.EnumMember{Name: "Off", Value: int(ModeOff)},
			meta.EnumMember{Name: "Heat", Value: int(ModeHeat)},
			meta.EnumMember{Name: "Cool", Value: int(ModeCool)},
			meta.EnumMember{Name: "Auto", Value: int(ModeAuto)}).
		MustBuild()

	sigTemperatureChanged = ThermostatType.MustSignal("temperatureChanged")
	sigTargetChanged = ThermostatType.MustSignal("targetChanged")
	sigModeChanged = ThermostatType.MustSignal("modeChanged")
	sigAlarm = ThermostatType.MustSignal("alarm")
}
