// Command translator turns a natural-language request into a JSON command.
//
//	translator [flags] "turn off the kitchen lights"
//
// With no text argument it reads requests interactively until "exit".
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/command-translator/internal/app"
	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/config"
	"github.com/example/command-translator/internal/logging"
)

const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitInterrupted = 130 // 128 + SIGINT, as a shell reports it
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	schema          string
	templateVersion string
	maxAttempts     int
	timeout         time.Duration
	history         int
	envFile         string
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	var o options
	fs := flag.NewFlagSet("translator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.schema, "schema", "", "schema file, or builtin:<name> (default builtin:command)")
	fs.StringVar(&o.templateVersion, "template-version", "", "embedded prompt template version")
	fs.IntVar(&o.maxAttempts, "max-attempts", 0, "validation attempts per request")
	fs.DurationVar(&o.timeout, "timeout", 0, "timeout for each model call")
	fs.IntVar(&o.history, "history", 0, "print the N most recent translations and exit")
	fs.StringVar(&o.envFile, "env", ".env", "path to a .env file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: translator [flags] [text]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if o.maxAttempts < 0 || o.history < 0 || o.timeout < 0 {
		return nil, nil, errors.New("-max-attempts, -history and -timeout must not be negative")
	}
	return &o, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	if err := config.LoadEnvFile(o.envFile); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration:\n%v\n", err)
		return exitError
	}
	applyFlags(cfg, o)

	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		// keep the terminal quiet unless asked
		level = "warn"
	}
	logger := logging.NewWithOptions("translator", logging.Options{Level: level, Format: cfg.LogFormat, Output: stderr})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer a.Close()

	switch {
	case o.history > 0:
		return printHistory(ctx, a, o.history, stdout, stderr)
	case len(rest) > 0:
		return translateOnce(ctx, a, strings.Join(rest, " "), stdout, stderr)
	default:
		return interactive(ctx, a, stdin, stdout, stderr)
	}
}

func applyFlags(cfg *config.Config, o *options) {
	if o.schema != "" {
		cfg.SchemaFile = o.schema
	}
	if o.templateVersion != "" {
		cfg.TemplateVersion = o.templateVersion
		cfg.TemplateFile = ""
	}
	if o.maxAttempts > 0 {
		cfg.Retry.MaxAttempts = o.maxAttempts
	}
	if o.timeout > 0 {
		cfg.LLM.Timeout = o.timeout
	}
}

func translateOnce(ctx context.Context, a *app.App, text string, stdout, stderr io.Writer) int {
	res, err := a.Translator.Translate(ctx, text)
	if err != nil {
		printError(stderr, err)
		return exitError
	}
	if err := writeJSON(stdout, res.Command); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}

func interactive(ctx context.Context, a *app.App, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "Natural Language to Command Interface")
	fmt.Fprintln(stdout, "Enter a command like 'turn off the kitchen lights' or 'exit' to quit.")

	lines, readErr := readLines(ctx, stdin)
	for {
		fmt.Fprint(stdout, "\nYou > ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(stdout)
			return exitInterrupted
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(stdout)
			if err := <-readErr; err != nil {
				fmt.Fprintf(stderr, "error: read input: %v\n", err)
				return exitError
			}
			return exitOK
		}

		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "exit") {
			fmt.Fprintln(stdout, "Goodbye!")
			return exitOK
		}
		if line == "" {
			continue
		}

		res, err := a.Translator.Translate(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(stdout)
				return exitInterrupted
			}
			printError(stderr, err)
			continue
		}
		fmt.Fprintln(stdout, "JSON Command:")
		if err := writeJSON(stdout, res.Command); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
	}
}

// readLines scans r on its own goroutine so the prompt loop can react to
// ctx while a read is blocked. The error channel yields once lines closes.
func readLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func printHistory(ctx context.Context, a *app.App, limit int, stdout, stderr io.Writer) int {
	if a.History == nil {
		fmt.Fprintln(stderr, "error: history is disabled (set HISTORY_DRIVER and HISTORY_DSN)")
		return exitError
	}
	entries, err := a.History.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	if err := writeJSON(stdout, entries); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s: %v\n", apperr.Kind(err), err)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
