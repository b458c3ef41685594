package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/bill-analyzer/internal/analysis"
	"github.com/zombor/bill-analyzer/internal/bill"
	"github.com/zombor/bill-analyzer/internal/export"
	"github.com/zombor/bill-analyzer/internal/history"
	"github.com/zombor/bill-analyzer/internal/ratelimit"
	"github.com/zombor/bill-analyzer/internal/render"
	"github.com/zombor/bill-analyzer/internal/scanning"
	"github.com/zombor/bill-analyzer/internal/settings"
	"github.com/zombor/bill-analyzer/internal/storage"
)

// app holds the root flags and the stores opened for a single command run
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	defaultKey string
	factory    analysis.ScannerFactory
	now        func() time.Time

	rootFlags *ff.FlagSet
	dbPath    *string
	backend   *string
	logLevel  *string
	logJSON   *bool

	settings *settings.Store
	history  *history.Store
	governor *ratelimit.Governor
}

func newApp(stdout io.Writer, defaultKey string) *app {
	a := &app{
		stdout:     stdout,
		stderr:     os.Stderr,
		defaultKey: defaultKey,
		factory:    analysis.DefaultScannerFactory{},
		now:        time.Now,
	}

	a.rootFlags = ff.NewFlagSet("bill-analyzer")
	a.dbPath = a.rootFlags.StringLong("db", "bill-analyzer.db", "Database file path")
	a.backend = a.rootFlags.StringLong("store", storage.BackendBolt, "Storage backend: 'bolt', 'sqlite' or 'memory'")
	a.logLevel = a.rootFlags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
	a.logJSON = a.rootFlags.BoolLong("log-json", "Write logs as JSON")
	return a
}

func (a *app) command() *ff.Command {
	return &ff.Command{
		Name:      "bill-analyzer",
		Usage:     "bill-analyzer [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "extract, review and export utility bill data with an AI model",
		Flags:     a.rootFlags,
		Subcommands: []*ff.Command{
			a.analyzeCommand(),
			a.historyCommand(),
			a.settingsCommand(),
			a.limitCommand(),
		},
		Exec: func(context.Context, []string) error {
			return ff.ErrHelp
		},
	}
}

// withStores opens the configured store for the duration of fn
func (a *app) withStores(fn func(ctx context.Context, args []string) error) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if err := configureLogging(a.stderr, *a.logLevel, *a.logJSON); err != nil {
			return err
		}

		kv, err := storage.Open(*a.backend, *a.dbPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer kv.Close()

		a.settings = settings.NewStore(kv, a.defaultKey)
		a.history = history.NewStore(kv)
		a.governor = ratelimit.NewGovernor(kv)

		return fn(ctx, args)
	}
}

func configureLogging(w io.Writer, level string, asJSON bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	}
	return nil
}

func (a *app) analyzeCommand() *ff.Command {
	fs := ff.NewFlagSet("analyze").SetParent(a.rootFlags)
	provider := fs.StringLong("provider", "", "Use this provider instead of the saved one: 'gemini' or 'ollama'")
	noSave := fs.BoolLong("no-save", "Do not add the result to the history")
	charts := fs.BoolLong("charts", "Plot the usage charts")

	return &ff.Command{
		Name:      "analyze",
		Usage:     "bill-analyzer analyze [FLAGS] FILE",
		ShortHelp: "extract the data from a bill image or PDF",
		Flags:     fs,
		Exec: a.withStores(func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("analyze takes exactly one file")
			}

			aiSettings := a.settings.Load()
			if *provider != "" {
				aiSettings.Provider = settings.Provider(*provider)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading bill: %w", err)
			}
			imageDataURI, err := scanning.DataURI(data, scanning.ContentTypeFromFilename(args[0]))
			if err != nil {
				return err
			}

			service := analysis.NewService(a.governor, a.factory)
			record, err := service.AnalyzeBill(ctx, imageDataURI, aiSettings)
			if err != nil {
				return err
			}

			if !*noSave {
				a.history.Add(record)
			}
			return render.Record(a.stdout, record, *charts)
		}),
	}
}

func (a *app) historyCommand() *ff.Command {
	listFlags := ff.NewFlagSet("list").SetParent(a.rootFlags)
	list := &ff.Command{
		Name:      "list",
		ShortHelp: "list saved bills, newest first",
		Flags:     listFlags,
		Exec: a.withStores(func(context.Context, []string) error {
			return render.History(a.stdout, a.history.List())
		}),
	}

	showFlags := ff.NewFlagSet("show").SetParent(a.rootFlags)
	showCharts := showFlags.BoolLong("charts", "Plot the usage charts")
	show := &ff.Command{
		Name:      "show",
		Usage:     "bill-analyzer history show [FLAGS] ID",
		ShortHelp: "show a saved bill",
		Flags:     showFlags,
		Exec: a.withStores(func(_ context.Context, args []string) error {
			record, err := a.lookup(args)
			if err != nil {
				return err
			}
			return render.Record(a.stdout, record, *showCharts)
		}),
	}

	return &ff.Command{
		Name:      "history",
		Usage:     "bill-analyzer history <SUBCOMMAND> ...",
		ShortHelp: "manage saved bills",
		Flags:     ff.NewFlagSet("history").SetParent(a.rootFlags),
		Subcommands: []*ff.Command{
			list,
			show,
			a.editCommand(),
			a.deleteCommand(),
			a.exportCommand(),
		},
		Exec: func(context.Context, []string) error {
			return ff.ErrHelp
		},
	}
}

func (a *app) lookup(args []string) (*bill.Record, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly one bill ID")
	}
	record, ok := a.history.Get(args[0])
	if !ok {
		return nil, fmt.Errorf("no saved bill with ID %q", args[0])
	}
	return record, nil
}

func (a *app) editCommand() *ff.Command {
	fs := ff.NewFlagSet("edit").SetParent(a.rootFlags)
	accountName := fs.StringLong("account-name", "", "Account holder's name")
	accountNumber := fs.StringLong("account-number", "", "Account number")
	serviceAddress := fs.StringLong("service-address", "", "Service address")
	statementDate := fs.StringLong("statement-date", "", "Statement date")
	dueDate := fs.StringLong("due-date", "", "Payment due date")
	total := fs.StringLong("total", "", "Total current charges")
	usage := fs.StringListLong("usage", "Usage value as CHART:MONTH:YEAR=VALUE (repeatable)")

	return &ff.Command{
		Name:      "edit",
		Usage:     "bill-analyzer history edit [FLAGS] ID",
		ShortHelp: "correct the fields of a saved bill",
		Flags:     fs,
		Exec: a.withStores(func(_ context.Context, args []string) error {
			if _, err := a.lookup(args); err != nil {
				return err
			}

			var totalValue float64
			if *total != "" {
				v, err := strconv.ParseFloat(*total, 64)
				if err != nil {
					return fmt.Errorf("invalid total %q", *total)
				}
				totalValue = v
			}

			edits := make([]usageEdit, 0, len(*usage))
			for _, s := range *usage {
				edit, err := parseUsageEdit(s)
				if err != nil {
					return err
				}
				edits = append(edits, edit)
			}

			var editErr error
			a.history.Edit(args[0], func(r *bill.Record) {
				// Check the usage edits first so a bad one changes nothing
				updated := r.ExtractedBill
				updated.UsageCharts = cloneCharts(r.UsageCharts)
				for _, e := range edits {
					if err := updated.SetUsageValue(e.chart, e.month, e.year, e.value); err != nil {
						editErr = err
						return
					}
				}
				setIfNotEmpty(&updated.AccountName, *accountName)
				setIfNotEmpty(&updated.AccountNumber, *accountNumber)
				setIfNotEmpty(&updated.ServiceAddress, *serviceAddress)
				setIfNotEmpty(&updated.StatementDate, *statementDate)
				setIfNotEmpty(&updated.DueDate, *dueDate)
				if *total != "" {
					updated.TotalCurrentCharges = totalValue
				}
				r.ExtractedBill = updated
			})
			if editErr != nil {
				return editErr
			}

			record, _ := a.history.Get(args[0])
			return render.Record(a.stdout, record, false)
		}),
	}
}

type usageEdit struct {
	chart, month, year string
	value              float64
}

// parseUsageEdit parses CHART:MONTH:YEAR=VALUE. The chart title may itself
// contain colons.
func parseUsageEdit(s string) (usageEdit, error) {
	key, rawValue, ok := cutLast(s, "=")
	if !ok {
		return usageEdit{}, fmt.Errorf("invalid usage %q, expected CHART:MONTH:YEAR=VALUE", s)
	}
	rest, year, ok := cutLast(key, ":")
	if !ok {
		return usageEdit{}, fmt.Errorf("invalid usage %q, expected CHART:MONTH:YEAR=VALUE", s)
	}
	chart, month, ok := cutLast(rest, ":")
	if !ok || chart == "" || month == "" || year == "" {
		return usageEdit{}, fmt.Errorf("invalid usage %q, expected CHART:MONTH:YEAR=VALUE", s)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
	if err != nil {
		return usageEdit{}, fmt.Errorf("invalid usage value %q", rawValue)
	}
	return usageEdit{chart: chart, month: month, year: year, value: value}, nil
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func cloneCharts(charts []bill.UsageChart) []bill.UsageChart {
	out := make([]bill.UsageChart, len(charts))
	for i, c := range charts {
		out[i] = c
		out[i].Data = make([]bill.UsageDataPoint, len(c.Data))
		for j, p := range c.Data {
			out[i].Data[j] = p
			out[i].Data[j].Usage = append([]bill.UsageByYear(nil), p.Usage...)
		}
	}
	return out
}

func (a *app) deleteCommand() *ff.Command {
	return &ff.Command{
		Name:      "delete",
		Usage:     "bill-analyzer history delete ID",
		ShortHelp: "delete a saved bill",
		Flags:     ff.NewFlagSet("delete").SetParent(a.rootFlags),
		Exec: a.withStores(func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one bill ID")
			}
			a.history.Remove(args[0])
			fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
			return nil
		}),
	}
}

func (a *app) exportCommand() *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(a.rootFlags)
	format := fs.StringLong("format", string(export.FormatCSV), "Export format: csv, json or yaml")
	outDir := fs.StringLong("out", ".", "Directory to write the export to")

	return &ff.Command{
		Name:      "export",
		Usage:     "bill-analyzer history export [FLAGS] ID",
		ShortHelp: "export a saved bill to a file",
		Flags:     fs,
		Exec: a.withStores(func(_ context.Context, args []string) error {
			f, err := export.ParseFormat(*format)
			if err != nil {
				return err
			}
			record, err := a.lookup(args)
			if err != nil {
				return err
			}

			data, err := export.Encode(record, f)
			if err != nil {
				return err
			}
			dir, err := export.NewDir(*outDir)
			if err != nil {
				return err
			}
			path, err := dir.Save(export.Filename(record, f, a.now()), data)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Exported %s\n", path)
			return nil
		}),
	}
}

func (a *app) settingsCommand() *ff.Command {
	show := &ff.Command{
		Name:      "show",
		ShortHelp: "show the AI provider settings",
		Flags:     ff.NewFlagSet("show").SetParent(a.rootFlags),
		Exec: a.withStores(func(context.Context, []string) error {
			a.printSettings(a.settings.Load())
			return nil
		}),
	}

	setFlags := ff.NewFlagSet("set").SetParent(a.rootFlags)
	provider := setFlags.StringLong("provider", "", "AI provider: 'gemini' or 'ollama'")
	geminiKey := setFlags.StringLong("gemini-key", "", "Google Gemini API key")
	geminiModel := setFlags.StringLong("gemini-model", "", "Google Gemini model name")
	ollamaURL := setFlags.StringLong("ollama-url", "", "Ollama server URL")
	ollamaModel := setFlags.StringLong("ollama-model", "", "Ollama model name (e.g., llava, qwen2-vl)")
	set := &ff.Command{
		Name:      "set",
		Usage:     "bill-analyzer settings set [FLAGS]",
		ShortHelp: "change the AI provider settings",
		Flags:     setFlags,
		Exec: a.withStores(func(context.Context, []string) error {
			s := a.settings.Load()
			switch p := settings.Provider(*provider); p {
			case "":
			case settings.ProviderGemini, settings.ProviderOllama:
				s.Provider = p
			default:
				return fmt.Errorf("invalid provider %q (valid: gemini, ollama)", *provider)
			}
			setIfNotEmpty(&s.GeminiAPIKey, *geminiKey)
			setIfNotEmpty(&s.GeminiModel, *geminiModel)
			setIfNotEmpty(&s.OllamaURL, *ollamaURL)
			setIfNotEmpty(&s.OllamaModel, *ollamaModel)

			a.settings.Save(s)
			a.printSettings(s)
			return nil
		}),
	}

	test := &ff.Command{
		Name:      "test",
		ShortHelp: "check that the selected provider is usable",
		Flags:     ff.NewFlagSet("test").SetParent(a.rootFlags),
		Exec: a.withStores(func(ctx context.Context, _ []string) error {
			s := a.settings.Load()
			if !settings.IsConfigured(s) {
				return fmt.Errorf("the %s provider is not configured", s.Provider)
			}
			if s.Provider != settings.ProviderOllama {
				fmt.Fprintf(a.stdout, "%s is configured.\n", s.Provider)
				return nil
			}

			models, err := scanning.ProbeOllama(ctx, s.OllamaURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Connected to Ollama at %s. %d models installed.\n", s.OllamaURL, len(models))
			if !hasModel(models, s.OllamaModel) {
				fmt.Fprintf(a.stdout, "Model %q is not installed. Run: ollama pull %s\n", s.OllamaModel, s.OllamaModel)
			}
			return nil
		}),
	}

	return &ff.Command{
		Name:        "settings",
		Usage:       "bill-analyzer settings <SUBCOMMAND> ...",
		ShortHelp:   "manage the AI provider settings",
		Flags:       ff.NewFlagSet("settings").SetParent(a.rootFlags),
		Subcommands: []*ff.Command{show, set, test},
		Exec: func(context.Context, []string) error {
			return ff.ErrHelp
		},
	}
}

// hasModel matches names with or without the default ":latest" tag
func hasModel(models []string, name string) bool {
	for _, m := range models {
		if m == name || strings.TrimSuffix(m, ":latest") == name {
			return true
		}
	}
	return false
}

func (a *app) printSettings(s settings.AiSettings) {
	fmt.Fprintf(a.stdout, "Provider:      %s\n", s.Provider)
	fmt.Fprintf(a.stdout, "Gemini key:    %s\n", maskKey(s.GeminiAPIKey))
	fmt.Fprintf(a.stdout, "Gemini model:  %s\n", s.GeminiModel)
	fmt.Fprintf(a.stdout, "Ollama URL:    %s\n", s.OllamaURL)
	fmt.Fprintf(a.stdout, "Ollama model:  %s\n", s.OllamaModel)
	fmt.Fprintf(a.stdout, "Configured:    %t\n", settings.IsConfigured(s))
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func (a *app) limitCommand() *ff.Command {
	return &ff.Command{
		Name:      "limit",
		ShortHelp: "show whether an analysis can be started now",
		Flags:     ff.NewFlagSet("limit").SetParent(a.rootFlags),
		Exec: a.withStores(func(context.Context, []string) error {
			decision := a.governor.CheckLimit()
			if decision.Allowed {
				fmt.Fprintf(a.stdout, "Ready. Up to %d analyses per %s.\n", ratelimit.MaxRequests, ratelimit.Window)
				return nil
			}
			fmt.Fprintf(a.stdout, "Rate limit reached. Try again in %d seconds.\n", decision.RetryAfterSeconds)
			return nil
		}),
	}
}
