package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
)

// REPL represents the interactive shell over a single run's validator
type REPL struct {
	validator *sequence.Validator
	out       io.Writer
	rl        *readline.Instance
	ctx       context.Context
	runID     string
	observe   func(ctx context.Context, event *events.AgentEvent) error
	now       func() time.Time
	commands  map[string]CommandHandler
}

// CommandHandler handles a specific command. args is the rest of the line
// after the command name, trimmed.
type CommandHandler func(args string) error

// Config holds REPL configuration
type Config struct {
	// Graph is the dependency graph to validate against. Default: canonical
	Graph *sequence.Graph

	// RunID labels the shell's first run. Default: a fresh run ID.
	// reset always starts a fresh run ID.
	RunID string

	// Observe, when set, receives every event sent from the shell after
	// validation (e.g. to persist it)
	Observe func(ctx context.Context, event *events.AgentEvent) error

	// Out receives all output. Default: os.Stdout
	Out io.Writer

	// Now stamps events sent without a timestamp. Default: time.Now
	Now func() time.Time
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	graph := cfg.Graph
	if graph == nil {
		graph = sequence.CanonicalGraph()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = events.NewRunID()
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &REPL{
		validator: sequence.NewValidator(graph, sequence.WithClock(now)),
		out:       out,
		ctx:       context.Background(),
		runID:     runID,
		observe:   cfg.Observe,
		now:       now,
		commands:  make(map[string]CommandHandler),
	}

	// Register built-in commands
	r.registerCommands()

	return r, nil
}

// Validator returns the shell's validator
func (r *REPL) Validator() *sequence.Validator {
	return r.validator
}

// RunID returns the ID of the shell's current run
func (r *REPL) RunID() string {
	return r.runID
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("eventseq> ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl

	r.printWelcome()

	// Main loop
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				// Ctrl+D - exit
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				// Exit command - graceful shutdown
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	command, args, _ := strings.Cut(line, " ")
	if handler, ok := r.commands[strings.ToLower(command)]; ok {
		return handler(strings.TrimSpace(args))
	}

	// A bare declared event type is shorthand for send
	if r.validator.Graph().Has(events.EventType(command)) {
		return r.cmdSend(line)
	}

	return fmt.Errorf("unknown command %q (type 'help' for available commands)", command)
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["send"] = r.cmdSend
	r.commands["next"] = r.cmdNext
	r.commands["status"] = r.cmdStatus
	r.commands["history"] = r.cmdHistory
	r.commands["violations"] = r.cmdViolations
	r.commands["graph"] = r.cmdGraph
	r.commands["reset"] = r.cmdReset
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

// completer completes command names and declared event types
func (r *REPL) completer() readline.AutoCompleter {
	var typeItems []readline.PrefixCompleterInterface
	for _, t := range r.validator.Graph().Declared() {
		typeItems = append(typeItems, readline.PcItem(string(t)))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("send", typeItems...),
		readline.PcItem("next"),
		readline.PcItem("status"),
		readline.PcItem("history"),
		readline.PcItem("violations"),
		readline.PcItem("graph"),
		readline.PcItem("reset"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("eventseq shell"))
	fmt.Fprintf(r.out, "Run %s, %d declared event types\n", r.runID, r.validator.Graph().Len())
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"send <type> [payload-json] [@timestamp]", "Validate an event (timestamp: RFC 3339 or Unix seconds)"},
		{"<type> [payload-json] [@timestamp]", "Shorthand for send"},
		{"next", "Show the events that may come next"},
		{"status", "Show completion status"},
		{"history", "List accepted events"},
		{"violations", "List rejected events"},
		{"graph", "Show declared events and their dependencies"},
		{"reset", "Clear the run and start a new run ID"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}

	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %s\n      %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Fprintln(r.out)

	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return io.EOF // Signal to exit the loop
}
