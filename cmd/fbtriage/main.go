// fbtriage-cli triages a feedback file in one shot: it classifies every item
// with the remote classifier and the keyword rules, prints the comparison
// table and writes the JSON artifact.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	fc "github.com/linnemanlabs/fbtriage/internal/cfg"
	"github.com/linnemanlabs/fbtriage/internal/ingest"
	"github.com/linnemanlabs/fbtriage/internal/llm"
	"github.com/linnemanlabs/fbtriage/internal/triage"
)

const appName = "fbtriage"
const component = "cli"

// feedbackWidth caps the feedback column so the table stays readable.
const feedbackWidth = 60

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

type options struct {
	in     string
	out    string
	config string
	llm    fc.LLM
	engine fc.Engine
	log    log.Config
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(appName+"-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.in, "in", "", "feedback file to triage (.csv or plain text, one item per line)")
	fs.StringVar(&o.out, "out", ".", "directory to write the JSON artifact to")
	fs.StringVar(&o.config, "config", "", "optional YAML file with LLM settings")
	o.llm.RegisterFlags(fs)
	o.engine.RegisterFlags(fs)
	o.log.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// env vars fill anything not set on the command line
	cfg.FillFromEnv(fs, "FBTRIAGE_", func(format string, args ...any) {
		fmt.Fprintf(stderr, format+"\n", args...)
	})

	// the config file only fills what neither flags nor env set
	if o.config != "" {
		if err := o.llm.LoadFile(o.config, fs); err != nil {
			return nil, err
		}
	}

	var errs []error
	if o.in == "" {
		errs = append(errs, errors.New("-in is required"))
	}
	errs = append(errs, o.llm.Validate(), o.engine.Validate(), o.log.Validate())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	v.AppName = appName
	v.Component = component

	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	lg, err := log.New(o.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	var remote *triage.Remote
	provider, err := llm.New(o.llm)
	switch {
	case errors.Is(err, triage.ErrNotConnected):
		L.Warn(ctx, "remote classifier not connected, running baseline only", "provider", o.llm.Provider, "reason", err)
	case err != nil:
		return fmt.Errorf("llm provider: %w", err)
	default:
		remote = triage.NewRemote(provider, o.llm.Timeout())
	}

	items, err := readItems(o.in)
	if err != nil {
		return err
	}

	engine := triage.NewEngine(remote, L, triage.EngineHooks{}, triage.EngineOptions{
		Concurrency: o.engine.Concurrency,
		RPS:         o.llm.RPS,
		FailFast:    o.engine.FailFast,
	})

	printStatus(stdout, engine.RemoteStatus())

	id := triage.NewBatchID()
	fmt.Fprintf(stdout, "Batch ID: %s (%d items)\n\n", id, len(items))

	records, runErr := engine.Run(ctx, id, items, nil)
	if runErr != nil {
		return fmt.Errorf("batch %s aborted after %d of %d items: %w", id, len(records), len(items), runErr)
	}

	if err := printTable(stdout, records); err != nil {
		return err
	}
	printSummary(stdout, triage.Summarize(records))

	path, err := writeExport(o.out, id, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nWrote %s\n", path)
	return nil
}

func readItems(path string) ([]triage.FeedbackItem, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ingest.Parse(filepath.Base(path), f)
}

func printStatus(w io.Writer, st triage.RemoteStatus) {
	if !st.Connected {
		fmt.Fprintln(w, "Remote classifier: not connected (baseline only)")
		return
	}
	fmt.Fprintf(w, "Remote classifier: connected (%s/%s)\n", st.Provider, st.Model)
}

func printTable(w io.Writer, records []triage.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFeedback\tAI Category\tRule Category\tCategory Match\tAI Urgency\tRule Urgency\tAI Action\tRule Action")
	for _, r := range triage.Rows(records) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			r.ID, clip(r.Feedback, feedbackWidth), dash(r.AICategory), r.RuleCategory, r.CategoryMatch,
			dash(r.AIUrgency), r.RuleUrgency, dash(r.AIAction), r.RuleAction)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, s triage.Summary) {
	fmt.Fprintf(w, "\nItems: %d  compared: %d  remote failures: %d  tokens: %d\n",
		s.Records, s.Compared, s.RemoteFailures, s.Tokens)
	if s.Compared == 0 {
		fmt.Fprintln(w, "Agreement: n/a (no AI decisions)")
		return
	}
	fmt.Fprintf(w, "Agreement: category %.0f%%  urgency %.0f%%  action %.0f%%\n",
		s.CategoryRate*100, s.UrgencyRate*100, s.ActionRate*100)
}

func writeExport(dir, batchID string, records []triage.Record) (string, error) {
	data, err := triage.Export(records)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, triage.ExportFileName(batchID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// clip flattens s to one line and shortens it to at most n runes.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
