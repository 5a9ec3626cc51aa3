// Package interactive provides the interactive command-line console of
// webchannel-demo.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/examples"
	"github.com/mash-protocol/webchannel-go/pkg/inspect"
)

// Console reads commands from the terminal and applies them to the
// published thermostat. Commands run on the channel's loop.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	ch         *channel.Channel
	thermostat *examples.Thermostat
}

// New creates a console. Its Stdout should receive all log output so that
// log lines do not garble the prompt.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "webchannel> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// newWithOutput creates a console without a terminal, for Execute only.
func newWithOutput(out io.Writer, ch *channel.Channel, t *examples.Thermostat) *Console {
	return &Console{out: out, ch: ch, thermostat: t}
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Close releases the terminal.
func (c *Console) Close() {
	if c.rl != nil {
		_ = c.rl.Close()
	}
}

// Run processes commands until quit, EOF or ctx ends. quit and EOF call cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, ch *channel.Channel, t *examples.Thermostat) {
	c.ch = ch
	c.thermostat = t

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if !c.Execute(ctx, strings.ToLower(parts[0]), parts[1:]) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command. It returns false for quit.
func (c *Console) Execute(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus(ctx)
	case "objects", "o":
		c.cmdObjects(ctx)
	case "clients", "c":
		c.cmdClients(ctx)
	case "inspect", "i":
		c.cmdInspect(ctx, args)
	case "get", "g":
		c.cmdGet(ctx, args)
	case "put", "p":
		c.cmdPut(ctx, args)
	case "call":
		c.cmdCall(ctx, args)
	case "set":
		c.cmdSet(ctx, args)
	case "temp":
		c.cmdTemp(ctx, args)
	case "mode":
		c.cmdMode(ctx, args)
	case "boost":
		c.cmdBoost(ctx, args)
	case "alarm":
		c.cmdAlarm(ctx, args)
	case "block":
		c.cmdBlock(ctx, args)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
WebChannel Demo Commands:
  Inspection:
    status             - Show thermostat state
    objects            - List registered objects
    clients            - List connected transports
    inspect <object>   - Show properties, methods and signals
    get <obj/prop>     - Read a property
    put <obj/prop> <v> - Write a property (JSON or plain text)
    call <obj/m> [a..] - Invoke a method

  Thermostat:
    set <celsius>      - Set the target temperature
    temp <celsius>     - Override the measured temperature
    mode <mode>        - Set the mode: off, heat, cool, auto
    boost <minutes>    - Raise the target for a while
    alarm <reason>     - Emit the alarm signal

  Channel:
    block on|off       - Suppress or resume property updates

  General:
    help               - Show this help
    quit               - Exit`)
}

// onLoop runs fn on the channel's loop and waits for it.
func (c *Console) onLoop(ctx context.Context, fn func()) bool {
	done := make(chan struct{})
	c.ch.Loop().Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	case <-time.After(5 * time.Second):
		fmt.Fprintln(c.out, "Timed out waiting for the event loop")
		return false
	}
}

func (c *Console) cmdStatus(ctx context.Context) {
	var temp, target float64
	var mode examples.Mode
	var boosting, blocked bool
	var clients int
	if !c.onLoop(ctx, func() {
		temp = c.thermostat.Temperature()
		target = c.thermostat.Target()
		mode = c.thermostat.Mode()
		boosting = c.thermostat.Boosting()
		blocked = c.ch.BlockUpdates()
		clients = len(c.ch.Transports())
	}) {
		return
	}

	fmt.Fprintln(c.out, "\nThermostat Status")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Temperature:    %.1f °C\n", temp)
	fmt.Fprintf(c.out, "  Target:         %.1f °C\n", target)
	fmt.Fprintf(c.out, "  Mode:           %s\n", mode)
	fmt.Fprintf(c.out, "  Boost:          %t\n", boosting)
	fmt.Fprintf(c.out, "  Updates:        %s\n", onOff(!blocked))
	fmt.Fprintf(c.out, "  Clients:        %d\n", clients)
	fmt.Fprintln(c.out)
}

func (c *Console) cmdObjects(ctx context.Context) {
	var ids []string
	var wrapped int
	if !c.onLoop(ctx, func() {
		for id := range c.ch.RegisteredObjects() {
			ids = append(ids, id)
		}
		wrapped = c.ch.Publisher().WrappedObjectCount()
	}) {
		return
	}
	slices.Sort(ids)
	fmt.Fprintf(c.out, "Registered objects (%d), wrapped objects: %d\n", len(ids), wrapped)
	for _, id := range ids {
		fmt.Fprintf(c.out, "  %s\n", id)
	}
}

func (c *Console) cmdClients(ctx context.Context) {
	var ids []string
	if !c.onLoop(ctx, func() {
		for _, t := range c.ch.Transports() {
			ids = append(ids, t.ID())
		}
	}) {
		return
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "No clients connected")
		return
	}
	fmt.Fprintf(c.out, "Connected clients (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(c.out, "  %s\n", id)
	}
}

func (c *Console) cmdInspect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: inspect <object>")
		return
	}
	var info *inspect.ObjectInfo
	var err error
	if !c.onLoop(ctx, func() { info, err = c.inspector().InspectObject(args[0]) }) {
		return
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.out, inspect.NewFormatter().FormatObject(info))
}

func (c *Console) cmdGet(ctx context.Context, args []string) {
	path, ok := c.parsePath(args, 1, "Usage: get <object/property>")
	if !ok {
		return
	}
	var text string
	var err error
	if !c.onLoop(ctx, func() {
		var v any
		v, err = c.inspector().ReadProperty(path)
		text = inspect.NewFormatter().FormatValue(v)
	}) {
		return
	}
	c.report(err, path.String()+" = "+text)
}

func (c *Console) cmdPut(ctx context.Context, args []string) {
	path, ok := c.parsePath(args, 2, "Usage: put <object/property> <value>")
	if !ok {
		return
	}
	value := inspect.ParseValue(strings.Join(args[1:], " "))
	var err error
	if !c.onLoop(ctx, func() { err = c.inspector().WriteProperty(path, value) }) {
		return
	}
	c.report(err, "OK")
}

func (c *Console) cmdCall(ctx context.Context, args []string) {
	path, ok := c.parsePath(args, 1, "Usage: call <object/method> [args...]")
	if !ok {
		return
	}
	var text string
	var err error
	if !c.onLoop(ctx, func() {
		var result any
		result, err = c.inspector().Invoke(path, inspect.ParseValues(args[1:]))
		text = inspect.NewFormatter().FormatValue(result)
	}) {
		return
	}
	c.report(err, "Result: "+text)
}

func (c *Console) parsePath(args []string, n int, usage string) (*inspect.Path, bool) {
	if len(args) < n {
		fmt.Fprintln(c.out, usage)
		return nil, false
	}
	path, err := inspect.ParsePath(args[0])
	if err == nil && path.IsPartial {
		err = inspect.ErrPartialPath
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return nil, false
	}
	return path, true
}

func (c *Console) inspector() *inspect.Inspector {
	return inspect.NewInspector(c.ch.Publisher())
}

func (c *Console) cmdSet(ctx context.Context, args []string) {
	v, ok := c.parseFloat(args, "Usage: set <celsius>")
	if !ok {
		return
	}
	var err error
	if !c.onLoop(ctx, func() { err = c.thermostat.SetTarget(v) }) {
		return
	}
	c.report(err, fmt.Sprintf("Target set to %.1f °C", v))
}

func (c *Console) cmdTemp(ctx context.Context, args []string) {
	v, ok := c.parseFloat(args, "Usage: temp <celsius>")
	if !ok {
		return
	}
	if !c.onLoop(ctx, func() { c.thermostat.SetTemperature(v) }) {
		return
	}
	fmt.Fprintf(c.out, "Temperature set to %.1f °C\n", v)
}

func (c *Console) cmdMode(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: mode off|heat|cool|auto")
		return
	}
	m, err := examples.ParseMode(strings.ToUpper(args[0]))
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if !c.onLoop(ctx, func() { err = c.thermostat.SetMode(m) }) {
		return
	}
	c.report(err, "Mode set to "+m.String())
}

func (c *Console) cmdBoost(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: boost <minutes>")
		return
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid duration: %v\n", err)
		return
	}
	ok := c.onLoop(ctx, func() {
		future, berr := c.thermostat.Boost(time.Duration(minutes) * time.Minute)
		if berr != nil {
			err = berr
			return
		}
		future.Then(func(value any, ok bool) {
			if ok {
				fmt.Fprintf(c.out, "Boost finished, target %v °C\n", value)
			}
		})
	})
	if !ok {
		return
	}
	c.report(err, fmt.Sprintf("Boost active for %d minutes", minutes))
}

func (c *Console) cmdAlarm(ctx context.Context, args []string) {
	reason := strings.Join(args, " ")
	if reason == "" {
		reason = "manual"
	}
	if !c.onLoop(ctx, func() { c.thermostat.RaiseAlarm(reason) }) {
		return
	}
	fmt.Fprintf(c.out, "Alarm raised: %s\n", reason)
}

func (c *Console) cmdBlock(ctx context.Context, args []string) {
	if len(args) < 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(c.out, "Usage: block on|off")
		return
	}
	block := args[0] == "on"
	if !c.onLoop(ctx, func() { c.ch.SetBlockUpdates(block) }) {
		return
	}
	fmt.Fprintf(c.out, "Property updates %s\n", onOff(!block))
}

func (c *Console) parseFloat(args []string, usage string) (float64, bool) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, usage)
		return 0, false
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %v\n", err)
		return 0, false
	}
	return v, true
}

func (c *Console) report(err error, ok string) {
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, ok)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
