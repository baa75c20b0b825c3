// Package console provides the interactive command-line interface of the
// device manager. Every command maps onto one lifecycle operation.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/lifecycle"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Config carries the terminal plumbing. Nil streams mean the process's
// standard input and output.
type Config struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
}

// Console handles interactive mode.
type Console struct {
	c        *lifecycle.Coordinator
	recorder *events.Recorder
	rl       *readline.Instance
}

// New creates a console driving c. recorder may be nil, which disables the
// events command.
func New(c *lifecycle.Coordinator, recorder *events.Recorder, cfg Config) (*Console, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = "devmgr> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdin:           cfg.Stdin,
		Stdout:          cfg.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{c: c, recorder: recorder, rl: rl}, nil
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("tree"),
	readline.PcItem("drivers"),
	readline.PcItem("add"),
	readline.PcItem("busdev"),
	readline.PcItem("remove"),
	readline.PcItem("unbind"),
	readline.PcItem("rebind"),
	readline.PcItem("unregister"),
	readline.PcItem("events"),
	readline.PcItem("quit"),
)

// Stdout returns a writer that coordinates with the readline prompt.
func (s *Console) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends.
func (s *Console) Run(ctx context.Context) error {
	defer s.rl.Close()
	out := s.rl.Stdout()
	printHelp(out)

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			fmt.Fprintln(out, "Exiting...")
			return nil
		}
		if err := Exec(ctx, s.c, s.recorder, out, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(out, "Exiting...")
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// Exec runs a single command line against c and writes its output to out.
func Exec(ctx context.Context, c *lifecycle.Coordinator, recorder *events.Recorder, out io.Writer, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(out)
		return nil
	case "tree", "dump":
		return c.Tree().WriteYAML(out)
	case "drivers":
		return cmdDrivers(c, out)
	case "add":
		return cmdAdd(ctx, c, out, args)
	case "busdev":
		return cmdBusDev(ctx, c, out, args)
	case "remove", "rm":
		return withDevice(c, args, "remove <path>", func(n *node.Node) error {
			if err := c.RequestRemove(ctx, n); err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %s\n", n.Path())
			return nil
		})
	case "unbind":
		return withDevice(c, args, "unbind <path>", func(n *node.Node) error {
			o, _ := n.Owner()
			if o == nil {
				return fmt.Errorf("%s has no driver", n.Path())
			}
			if err := c.DriverUnbind(ctx, o.Name(), n); err != nil {
				return err
			}
			fmt.Fprintf(out, "unbound %s from %s\n", n.Path(), o.Name())
			return nil
		})
	case "rebind":
		return withDevice(c, args, "rebind <path>", func(n *node.Node) error {
			if err := c.Rebind(ctx, n); err != nil {
				return err
			}
			if err := c.Flush(ctx); err != nil {
				return err
			}
			if o, _ := n.Owner(); o != nil {
				fmt.Fprintf(out, "%s bound to %s\n", n.Path(), o.Name())
			} else {
				fmt.Fprintf(out, "%s left unbound\n", n.Path())
			}
			return nil
		})
	case "unregister":
		if len(args) != 1 {
			return errors.New("usage: unregister <driver>")
		}
		if err := c.UnregisterDriver(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "unregistered %s\n", args[0])
		return nil
	case "events":
		return cmdEvents(recorder, out, args)
	case "quit", "exit", "q":
		return errQuit
	}
	return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Device Manager Commands:
  Inspection:
    tree                             - Dump the device tree as YAML
    drivers                          - List registered drivers in match order
    events [path]                    - Show recent lifecycle events

  Lifecycle:
    add <parent> <name> [props]      - Add a device; props like protocol=pci,vid=0x8086
    busdev <parent> <driver> <name> [args]
                                     - Create a bus device through a bus manager
    remove <path>                    - Remove a device and its subtree
    unbind <path>                    - Detach the bound driver, keep the device
    rebind <path>                    - Run matching again for an unbound device
    unregister <driver>              - Unregister a driver that owns no devices

    quit                             - Exit`)
}

func withDevice(c *lifecycle.Coordinator, args []string, usage string, fn func(n *node.Node) error) error {
	if len(args) != 1 {
		return errors.New("usage: " + usage)
	}
	n, err := c.Tree().Resolve(args[0])
	if err != nil {
		return err
	}
	return fn(n)
}

func cmdDrivers(c *lifecycle.Coordinator, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBUS MANAGER\tDEVICES\tPROGRAM")
	for _, d := range c.Registry().Drivers() {
		_, bm := d.BusManager()
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", d.Name(), bm, c.Tree().OwnedBy(d.Name()), d.Program())
	}
	return tw.Flush()
}

func cmdAdd(ctx context.Context, c *lifecycle.Coordinator, out io.Writer, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: add <parent> <name> [props]")
	}
	parent, err := c.Tree().Resolve(args[0])
	if err != nil {
		return err
	}
	var items []props.Prop
	if len(args) == 3 {
		if items, err = props.ParseList(args[2]); err != nil {
			return err
		}
	}
	proto := protocol.Device
	for _, p := range items {
		if p.Key == props.KeyProtocol {
			proto = protocol.ID(p.Value)
		}
	}
	n, err := c.AddDevice(ctx, parent, node.Args{Name: args[1], ProtoID: proto, Props: items})
	if err != nil {
		return err
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	if o, _ := n.Owner(); o != nil {
		fmt.Fprintf(out, "added %s (bound to %s)\n", n.Path(), o.Name())
	} else {
		fmt.Fprintf(out, "added %s (unbound)\n", n.Path())
	}
	return nil
}

func cmdBusDev(ctx context.Context, c *lifecycle.Coordinator, out io.Writer, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("usage: busdev <parent> <driver> <name> [args]")
	}
	parent, err := c.Tree().Resolve(args[0])
	if err != nil {
		return err
	}
	var devArgs string
	if len(args) == 4 {
		devArgs = args[3]
	}
	rsrc := c.Resources().Mint()
	n, err := c.CreateBusDevice(ctx, parent, args[1], args[2], devArgs, rsrc)
	if err != nil {
		rsrc.Close()
		return err
	}
	fmt.Fprintf(out, "created %s in host %s\n", n.Path(), n.HostID())
	return nil
}

func cmdEvents(recorder *events.Recorder, out io.Writer, args []string) error {
	if recorder == nil {
		return errors.New("event recording is disabled")
	}
	var filter string
	if len(args) > 0 {
		filter = args[0]
	}
	for _, ev := range recorder.Events() {
		if filter != "" && ev.Path != filter {
			continue
		}
		fmt.Fprintf(out, "%s %s\n", ev.Timestamp.Format("15:04:05.000"), ev)
	}
	return nil
}
