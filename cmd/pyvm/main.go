package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/rocky/x-python/asmfile"
	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/loader"
	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
	"github.com/rocky/x-python/vm"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tracebackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)
)

func main() {
	app := &cli.Command{
		Name:    "pyvm",
		Usage:   "a cross-version Python bytecode engine",
		Version: version.Version(),
		Commands: []*cli.Command{
			runCommand,
			debugCommand,
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, tracebackStyle.Render(err.Error()))
		os.Exit(1)
	}
}

var targetFlag = &cli.StringFlag{
	Name:  "target",
	Value: "3.12",
	Usage: "Python language version the loaded code object targets (e.g. 3.11, 2.7)",
}

var hostFlag = &cli.StringFlag{
	Name:  "host",
	Value: "",
	Usage: "host toolchain version for exec/eval/compile fallback (defaults to --target)",
}

var traceFlag = &cli.BoolFlag{
	Name:  "trace",
	Usage: "print each line and opcode event of the top-level code (called functions are not traced)",
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "execute a compiled code object",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{targetFlag, hostFlag, traceFlag, &cli.StringFlag{
		Name:    "module",
		Aliases: []string{"m"},
		Usage:   "resolve a dotted module name to <name>.yaml in the working directory, instead of a <file> argument",
	}},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if m := cmd.String("module"); m != "" {
			path = strings.ReplaceAll(m, ".", string(os.PathSeparator)) + ".yaml"
		}
		if path == "" {
			return fmt.Errorf("run: missing <file> argument (or --module)")
		}
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}
		it, err := vm.New(cfg)
		if err != nil {
			return err
		}
		co, err := loadCodeObject(path, cfg.TargetVersion, cfg.HostVersion)
		if err != nil {
			return err
		}
		sessionID := uuid.New()
		if cmd.Bool("trace") {
			it.SetTrace(lineTracer(sessionID))
		}

		globals := values.NewDict()
		_, err = it.Execute(co, globals)
		if err != nil {
			printTraceback(sessionID, err)
			os.Exit(1)
		}
		return nil
	},
}

var debugCommand = &cli.Command{
	Name:      "debug",
	Usage:     "step a code object under an interactive breakpoint console",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{targetFlag, hostFlag},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if path == "" {
			return fmt.Errorf("debug: missing <file> argument")
		}
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}
		it, err := vm.New(cfg)
		if err != nil {
			return err
		}
		co, err := loadCodeObject(path, cfg.TargetVersion, cfg.HostVersion)
		if err != nil {
			return err
		}
		return runDebugConsole(it, co)
	},
}

func configFromFlags(cmd *cli.Command) (*vm.Config, error) {
	target, err := parseVersionTag(cmd.String("target"))
	if err != nil {
		return nil, err
	}
	host := target
	if h := cmd.String("host"); h != "" {
		host, err = parseVersionTag(h)
		if err != nil {
			return nil, err
		}
	}
	cfg := vm.DefaultConfig()
	cfg.TargetVersion = target
	cfg.HostVersion = host
	cfg.TraceEvents = cmd.Bool("trace")
	return cfg, nil
}

func parseVersionTag(s string) (version.Tag, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return version.Tag{}, fmt.Errorf("invalid version %q, expected MAJOR.MINOR", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return version.Tag{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return version.Tag{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return version.Tag{Major: major, Minor: minor}, nil
}

// loadCodeObject picks a loader.Loader by file extension. Only the
// asmfile YAML listing format is actually decodable in this engine
// (marshal parsing and source compilation are both out of scope);
// .pyc/.py inputs are routed through the real loader.Loader
// implementations so the failure mode documents exactly what an
// embedder would need to supply.
func loadCodeObject(path string, target, host version.Tag) (*code.Object, error) {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return asmfile.Load(path, target)
	case strings.HasSuffix(path, ".pyc"):
		res, err := (&loader.ContainerLoader{}).Load(path)
		if err != nil {
			return nil, err
		}
		if res.Code == nil {
			return nil, fmt.Errorf("pyvm: %s has a valid container header for Python %s but this build has no marshal decoder wired in; supply one via loader.ContainerLoader.Decode", path, res.Version)
		}
		return res.Code, nil
	default:
		_, err := (&loader.SourceLoader{Host: host}).Load(path)
		return nil, err
	}
}

func lineTracer(sessionID uuid.UUID) vm.TraceFunc {
	var fn vm.TraceFunc
	fn = func(event vm.TraceEvent, offset int, opcodeName string, opcodeByte byte, line int, imm int64, eventArg *values.Value, fr *vm.Frame) (vm.TraceControl, vm.TraceFunc) {
		fmt.Fprintf(os.Stderr, "%s %s line %d (%s @%d)\n",
			frameStyle.Render(sessionID.String()[:8]), event, line, opcodeName, offset)
		return vm.ControlNone, fn
	}
	return fn
}

func printTraceback(sessionID uuid.UUID, err error) {
	fmt.Fprintln(os.Stderr, headerStyle.Render(fmt.Sprintf(" session %s ", sessionID.String()[:8])))
	fmt.Fprintln(os.Stderr, tracebackStyle.Render("Traceback (most recent call last):"))
	fmt.Fprintln(os.Stderr, tracebackStyle.Render(err.Error()))
}

// runDebugConsole drives a chzyer/readline REPL over a single code
// object, offering break/continue/print/quit -- a minimal analog
// of pdb's command loop, built on the same breakpoint byte-patching
// (Frame.SetBreakpoint) the tracing callback in vm/tracer.go exposes.
func runDebugConsole(it *vm.Interpreter, co *code.Object) error {
	rl, err := readline.New(promptStyle.Render("(pyvm) "))
	if err != nil {
		return fmt.Errorf("debug: %w", err)
	}
	defer rl.Close()

	globals := values.NewDict()
	fr := vm.NewFrame(co, globals, it.Builtins, globals)
	breakpoints := map[int]bool{}

	fmt.Println(headerStyle.Render(" pyvm debug console "))
	fmt.Println(frameStyle.Render("break <offset> | continue | print <name> | quit"))

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "q":
			return nil
		case "break", "b":
			if len(fields) != 2 {
				fmt.Println("usage: break <offset>")
				continue
			}
			offset, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			fr.SetBreakpoint(offset)
			breakpoints[offset] = true
			fmt.Printf("breakpoint set at offset %d\n", offset)
		case "continue", "c":
			fr.Trace = debugTrace(rl)
			fr.EventFlags |= vm.EventFlagBrk
			// Drive the console's own frame rather than it.Execute,
			// which would build a fresh one with an empty Brkpt map
			// and trip over the BRKPT bytes SetBreakpoint already
			// patched into co.Code.
			val, err := it.ExecuteFrame(fr)
			if err != nil {
				printTraceback(uuid.New(), err)
				continue
			}
			fmt.Println("->", val.String())
		case "print", "p":
			if len(fields) != 2 {
				fmt.Println("usage: print <name>")
				continue
			}
			idx := indexOfName(co.Varnames, fields[1])
			if idx < 0 || idx >= len(fr.FastLocals) || fr.FastLocals[idx] == nil {
				fmt.Println("<unbound>")
				continue
			}
			fmt.Println(fr.FastLocals[idx].String())
		default:
			fmt.Println("unrecognized command:", fields[0])
		}
	}
}

func debugTrace(rl *readline.Instance) vm.TraceFunc {
	var fn vm.TraceFunc
	fn = func(event vm.TraceEvent, offset int, opcodeName string, opcodeByte byte, line int, imm int64, eventArg *values.Value, fr *vm.Frame) (vm.TraceControl, vm.TraceFunc) {
		if event == vm.EventBrk {
			fmt.Printf("breakpoint hit at offset %d (line %d, next op %s)\n", offset, line, opcodeName)
		}
		return vm.ControlNone, fn
	}
	return fn
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
