package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"tpf/internal/pipectx"
)

// REPL is the interactive shell over a running pipeline host.
type REPL struct {
	client *Client
	out    io.Writer
}

// NewREPL returns a shell bound to c, writing to stdout.
func NewREPL(c *Client) *REPL {
	return &REPL{client: c, out: os.Stdout}
}

// Run starts the prompt loop. It returns on the exit command, Ctrl+D,
// or context cancellation between commands.
func (r *REPL) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "tpf» ",
		HistoryFile:       filepath.Join(os.TempDir(), ".tpf_repl_history"),
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(r.out, "Connected to %s. Type 'help' for commands, TAB to complete.\n\n", r.client.BaseURL())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		done, err := r.dispatch(ctx, input)
		if err != nil {
			fmt.Fprintln(r.out, text.FgRed.Sprintf("Error: %v", err))
		}
		if done {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		fmt.Fprintln(r.out)
	}
}

// dispatch runs one shell command. The bool reports an explicit exit.
func (r *REPL) dispatch(ctx context.Context, input string) (bool, error) {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		return true, nil
	case "help":
		r.printHelp()
		return false, nil
	case "send":
		return false, r.send(ctx, rest)
	case "stream":
		return false, r.streamCommand(ctx, rest)
	case "policy":
		return false, r.policy(rest)
	case "replay":
		return false, r.replay(rest)
	case "status":
		return false, r.status(ctx)
	case "health":
		return false, r.health(ctx)
	case "steps":
		return false, r.steps(ctx)
	default:
		return false, fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func (r *REPL) send(ctx context.Context, raw string) error {
	if raw == "" {
		return fmt.Errorf("usage: send <json>")
	}
	var input any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}

	res, err := r.client.Execute(ctx, input)
	if err != nil {
		return err
	}
	if res.NoResult {
		fmt.Fprintln(r.out, "(no result)")
	} else {
		fmt.Fprintln(r.out, renderJSON(res.Value))
	}
	if res.CacheStatus != "" {
		fmt.Fprintln(r.out, text.FgHiBlack.Sprintf("cache: %s", res.CacheStatus))
	}
	return nil
}

func (r *REPL) streamCommand(ctx context.Context, raw string) error {
	if raw == "" {
		return fmt.Errorf("usage: stream <json-array>")
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return fmt.Errorf("input is not a JSON array: %w", err)
	}

	n := 0
	err := r.client.Stream(ctx, items, func(line StreamLine) error {
		switch {
		case line.Fatal:
			fmt.Fprintln(r.out, text.FgRed.Sprintf("run failed: %s", line.Error))
		case line.Failed():
			n++
			fmt.Fprintln(r.out, text.FgYellow.Sprintf("%3d  failed: %s", n, line.Error))
		default:
			n++
			fmt.Fprintf(r.out, "%3d  %s\n", n, renderCompact(line.Value))
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%d emission(s)\n", n)
	return nil
}

func (r *REPL) policy(arg string) error {
	if arg == "" {
		fmt.Fprintf(r.out, "policy: %s\n", r.client.Context().EffectivePolicy())
		return nil
	}
	if strings.EqualFold(arg, "default") {
		if err := r.client.SetPolicy(""); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "policy cleared, server default applies")
		return nil
	}
	p := pipectx.CachePolicy(strings.ToUpper(arg))
	if err := r.client.SetPolicy(p); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "policy set to %s\n", p)
	return nil
}

func (r *REPL) replay(arg string) error {
	switch strings.ToLower(arg) {
	case "":
		fmt.Fprintf(r.out, "replay: %t\n", r.client.Context().Replay)
	case "on":
		r.client.SetReplay(true)
		fmt.Fprintln(r.out, "replay on")
	case "off":
		r.client.SetReplay(false)
		fmt.Fprintln(r.out, "replay off")
	default:
		return fmt.Errorf("usage: replay on|off")
	}
	return nil
}

func (r *REPL) status(ctx context.Context) error {
	gate := "unreachable"
	if ready, err := r.client.Ready(ctx); err == nil {
		gate = ready.State
	}
	pc := r.client.Context()

	tw := r.newTable()
	tw.AppendRow(table.Row{"server", r.client.BaseURL()})
	tw.AppendRow(table.Row{"gate", gate})
	tw.AppendRow(table.Row{"policy", string(pc.EffectivePolicy())})
	tw.AppendRow(table.Row{"replay", fmt.Sprintf("%t", pc.Replay)})
	if pc.Version != "" {
		tw.AppendRow(table.Row{"version", pc.Version})
	}
	tw.Render()
	return nil
}

func (r *REPL) health(ctx context.Context) error {
	h, err := r.client.Health(ctx)
	if err != nil {
		return err
	}
	gate := "unknown"
	if ready, rerr := r.client.Ready(ctx); rerr == nil {
		gate = ready.State
	}

	tw := r.newTable()
	tw.AppendRow(table.Row{"status", h.Status})
	tw.AppendRow(table.Row{"gate", gate})
	tw.AppendRow(table.Row{"server version", h.Version})
	tw.Render()
	return nil
}

func (r *REPL) steps(ctx context.Context) error {
	stages, err := r.client.Steps(ctx)
	if err != nil {
		return err
	}

	tw := r.newTable()
	tw.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("#"),
		text.FgHiCyan.Sprint("STEP"),
		text.FgHiCyan.Sprint("SHAPE"),
		text.FgHiCyan.Sprint("PARALLEL"),
	})
	for i, st := range stages {
		tw.AppendRow(table.Row{i + 1, st.Name, st.Shape, st.Parallel})
	}
	tw.Render()
	return nil
}

func (r *REPL) printHelp() {
	commands := [][2]string{
		{"send <json>", "run the pipeline over one input"},
		{"stream <json-array>", "run the pipeline over an input array"},
		{"policy <name>", "set the cache policy ('default' clears the pin)"},
		{"replay on|off", "mark requests as replay traffic"},
		{"status", "show connection and request settings"},
		{"health", "show host liveness and gate state"},
		{"steps", "list the planned pipeline stages"},
		{"help", "show this help"},
		{"exit", "leave the shell"},
	}
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %-22s %s\n", c[0], c[1])
	}
}

func (r *REPL) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(table.StyleRounded)
	return tw
}

func (r *REPL) completer() *readline.PrefixCompleter {
	policies := []readline.PrefixCompleterInterface{
		readline.PcItem(string(pipectx.PolicyPreferCache)),
		readline.PcItem(string(pipectx.PolicyCacheOnly)),
		readline.PcItem(string(pipectx.PolicySkipIfPresent)),
		readline.PcItem(string(pipectx.PolicyRequireCache)),
		readline.PcItem(string(pipectx.PolicyBypassCache)),
		readline.PcItem("default"),
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("send"),
		readline.PcItem("stream"),
		readline.PcItem("policy", policies...),
		readline.PcItem("replay", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("status"),
		readline.PcItem("health"),
		readline.PcItem("steps"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func renderJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}

func renderCompact(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
