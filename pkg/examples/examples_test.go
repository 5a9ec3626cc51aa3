package examples

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/internal/testtransport"
	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

func newLoop() (*clock.Mock, *loop.Loop) {
	clk := clock.NewMock()
	return clk, loop.New(loop.WithClock(clk))
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeOff, "OFF"},
		{ModeHeat, "HEAT"},
		{ModeCool, "COOL"},
		{ModeAuto, "AUTO"},
		{Mode(9), "MODE(9)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(tt.mode), got, tt.want)
		}
	}

	m, err := ParseMode("COOL")
	require.NoError(t, err)
	assert.Equal(t, ModeCool, m)

	_, err = ParseMode("cool")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestSetTargetValidatesRange(t *testing.T) {
	_, l := newLoop()
	th := NewThermostat(l)

	var got []any
	th.Connect(sigTargetChanged, func(args []any) { got = append(got, args[0]) })

	require.NoError(t, th.SetTarget(21.5))
	require.NoError(t, th.SetTarget(21.5))
	assert.ErrorIs(t, th.SetTarget(MaxTarget+1), ErrTargetOutOfRange)
	assert.ErrorIs(t, th.SetTarget(MinTarget-1), ErrTargetOutOfRange)

	assert.Equal(t, []any{21.5}, got, "only real changes are signalled")
	assert.Equal(t, 21.5, th.Target())
}

func TestSetModeRejectsUnknown(t *testing.T) {
	_, l := newLoop()
	th := NewThermostat(l)

	assert.ErrorIs(t, th.SetMode(Mode(42)), ErrInvalidMode)
	assert.Equal(t, ModeHeat, th.Mode())
	require.NoError(t, th.SetMode(ModeAuto))
	assert.Equal(t, ModeAuto, th.Mode())
}

func TestStepMovesTowardsTarget(t *testing.T) {
	_, l := newLoop()
	th := NewThermostat(l)

	for range 100 {
		th.Step()
	}
	assert.Equal(t, 20.0, th.Temperature())

	require.NoError(t, th.SetMode(ModeCool))
	require.NoError(t, th.SetTarget(19))
	for range 5 {
		th.Step()
	}
	assert.Equal(t, 19.5, th.Temperature())

	require.NoError(t, th.SetMode(ModeOff))
	for range 100 {
		th.Step()
	}
	assert.Equal(t, 15.0, th.Temperature())
}

func TestSimulationRunsOnTheLoop(t *testing.T) {
	clk, l := newLoop()
	th := NewThermostat(l)

	th.StartSimulation(time.Second)
	for range 3 {
		clk.Add(time.Second)
		l.ProcessEvents()
	}
	assert.Equal(t, 18.3, th.Temperature())

	th.StopSimulation()
	clk.Add(10 * time.Second)
	l.ProcessEvents()
	assert.Equal(t, 18.3, th.Temperature())
}

func TestBoostRestoresTarget(t *testing.T) {
	clk, l := newLoop()
	th := NewThermostat(l)

	f, err := th.Boost(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 22.0, th.Target())
	assert.True(t, th.Boosting())

	_, err = th.Boost(time.Minute)
	assert.ErrorIs(t, err, ErrBoostActive)

	clk.Add(30 * time.Minute)
	l.ProcessEvents()

	require.True(t, f.Done())
	v, ok := f.Result()
	assert.True(t, ok)
	assert.Equal(t, 20.0, v)
	assert.False(t, th.Boosting())
}

func TestBoostKeepsManualTarget(t *testing.T) {
	clk, l := newLoop()
	th := NewThermostat(l)

	f, err := th.Boost(time.Minute)
	require.NoError(t, err)
	require.NoError(t, th.SetTarget(25))

	clk.Add(time.Minute)
	l.ProcessEvents()

	v, _ := f.Result()
	assert.Equal(t, 25.0, v)
}

func TestBoostRejectsInvalidDuration(t *testing.T) {
	_, l := newLoop()
	th := NewThermostat(l)

	for _, d := range []time.Duration{0, -time.Minute, MaxBoost + time.Minute} {
		_, err := th.Boost(d)
		assert.ErrorIs(t, err, ErrInvalidBoost, "duration %v", d)
	}
}

func TestDestroyFailsPendingBoost(t *testing.T) {
	_, l := newLoop()
	th := NewThermostat(l)
	s := th.CreateSchedule("weekday")

	f, err := th.Boost(time.Minute)
	require.NoError(t, err)

	th.Destroy()

	assert.True(t, f.Done())
	assert.ErrorIs(t, f.Err(), ErrBoostCancelled)
	assert.True(t, s.IsDestroyed())
	assert.True(t, th.IsDestroyed())
	assert.Empty(t, th.Schedules())
}

func TestScheduleAddKeepsOrder(t *testing.T) {
	s := NewSchedule("weekday")

	var changes int
	s.Connect(sigEntriesChanged, func([]any) { changes++ })

	require.NoError(t, s.Add(22*time.Hour, 17))
	require.NoError(t, s.Add(6*time.Hour+30*time.Minute, 21))
	require.NoError(t, s.Add(6*time.Hour+30*time.Minute, 21.5))
	assert.ErrorIs(t, s.Add(24*time.Hour, 20), ErrInvalidSetpoint)

	assert.Equal(t, []any{"06:30=21.5", "22:00=17"}, s.entries())
	assert.Equal(t, 3, changes)
}

func TestScheduleTargetAtWrapsMidnight(t *testing.T) {
	s := NewSchedule("weekday")
	_, ok := s.TargetAt(time.Hour)
	assert.False(t, ok)

	require.NoError(t, s.Add(7*time.Hour, 21))
	require.NoError(t, s.Add(22*time.Hour, 17))

	tests := []struct {
		at   time.Duration
		want float64
	}{
		{time.Hour, 17},
		{7 * time.Hour, 21},
		{12 * time.Hour, 21},
		{23 * time.Hour, 17},
	}
	for _, tt := range tests {
		got, ok := s.TargetAt(tt.at)
		if !ok || got != tt.want {
			t.Errorf("TargetAt(%v) = %v, %v, want %v", tt.at, got, ok, tt.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	d, err := ParseTimeOfDay(" 07:45 ")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Hour+45*time.Minute, d)

	for _, s := range []string{"", "7", "25:00", "07:61"} {
		_, err := ParseTimeOfDay(s)
		assert.ErrorIs(t, err, ErrInvalidSetpoint, "input %q", s)
	}
}

func TestScheduleClear(t *testing.T) {
	s := NewSchedule("weekend")
	var changes int
	s.Connect(sigEntriesChanged, func([]any) { changes++ })

	s.Clear()
	assert.Zero(t, changes, "clearing an empty schedule is silent")

	require.NoError(t, s.Add(time.Hour, 20))
	s.Clear()
	assert.Empty(t, s.Setpoints())
	assert.Equal(t, 2, changes)
}

type session struct {
	clock *clock.Mock
	loop  *loop.Loop
	ch    *channel.Channel
	rec   *testtransport.Recorder
	th    *Thermostat
	id    float64
}

func newSession(t *testing.T) *session {
	t.Helper()
	clk, l := newLoop()
	config := channel.DefaultConfig()
	config.PropertyUpdateInterval = -1

	s := &session{clock: clk, loop: l, ch: channel.New(l, config), th: NewThermostat(l)}
	require.NoError(t, s.ch.RegisterObject("thermostat", s.th))
	s.rec = testtransport.New("browser")
	require.NoError(t, s.ch.ConnectTo(s.rec))
	t.Cleanup(s.ch.Close)
	return s
}

// invoke sends an InvokeMethod and returns its request id.
func (s *session) invoke(object, method string, args ...any) float64 {
	s.id++
	if args == nil {
		args = []any{}
	}
	s.rec.Deliver(wire.NewRequest(wire.TypeInvokeMethod, s.id, map[string]any{
		wire.KeyObject: object,
		wire.KeyMethod: method,
		wire.KeyArgs:   args,
	}))
	s.loop.ProcessEvents()
	return s.id
}

func (s *session) response(t *testing.T, id float64) any {
	t.Helper()
	for _, msg := range s.rec.OfType(wire.TypeResponse) {
		if msg[wire.KeyID] == id {
			return msg[wire.KeyData]
		}
	}
	t.Fatalf("no response to request %v", id)
	return nil
}

func TestRemoteScheduleLifecycle(t *testing.T) {
	s := newSession(t)

	ref := s.response(t, s.invoke("thermostat", "createSchedule", "weekday"))
	scheduleID, ok := wire.ObjectRefID(ref)
	require.True(t, ok, "createSchedule returns an object reference, got %v", ref)
	assert.True(t, wire.IsObjectRef(ref))

	s.invoke(scheduleID, "add", "07:30", 21.5)
	assert.Equal(t, 21.5, s.response(t, s.invoke(scheduleID, "targetAt", "08:00")))
	assert.Equal(t, []any{"weekday"}, s.response(t, s.invoke("thermostat", "schedules")))
	assert.Empty(t, s.rec.Errors())
}

func TestRemoteSetTargetOverloads(t *testing.T) {
	s := newSession(t)

	s.invoke("thermostat", "setTarget", 23.0)
	assert.Equal(t, 23.0, s.th.Target())

	s.invoke("thermostat", "setTarget", 19.0, float64(ModeCool))
	assert.Equal(t, 19.0, s.th.Target())
	assert.Equal(t, ModeCool, s.th.Mode())

	s.invoke("thermostat", "setMode", "AUTO")
	assert.Equal(t, ModeAuto, s.th.Mode())
}

func TestRemoteBoostAnswersWhenFinished(t *testing.T) {
	s := newSession(t)

	id := s.invoke("thermostat", "boost", 15.0)
	for _, msg := range s.rec.OfType(wire.TypeResponse) {
		require.NotEqual(t, id, msg[wire.KeyID], "boost must not answer before it ends")
	}

	s.clock.Add(15 * time.Minute)
	s.loop.ProcessEvents()
	assert.Equal(t, 20.0, s.response(t, id))
}
