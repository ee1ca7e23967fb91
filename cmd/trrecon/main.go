// trrecon - Event-to-patch reconciliation for heavy-transport voyage
// schedules. Parses field event logs, resolves them against the
// canonical schedule document, and derives RFC6902 patches and KPIs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/macho715/tr-dash-sub000/internal/model"
	"github.com/macho715/tr-dash-sub000/pkg/config"
	"github.com/macho715/tr-dash-sub000/pkg/export"
	"github.com/macho715/tr-dash-sub000/pkg/parser"
	"github.com/macho715/tr-dash-sub000/pkg/pipeline"
	"github.com/macho715/tr-dash-sub000/pkg/quality"
	"github.com/macho715/tr-dash-sub000/pkg/runstore"
	"github.com/macho715/tr-dash-sub000/pkg/telemetry"
	"github.com/macho715/tr-dash-sub000/pkg/tui"
	"github.com/macho715/tr-dash-sub000/pkg/util"
	"github.com/macho715/tr-dash-sub000/pkg/watch"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	inputFile     string
	documentFile  string
	outputFile    string
	formatFlag    string
	aliasFile     string
	shiftRuleFile string
	xlsxFile      string
	pr1ReportID   string
	runID         string
	force         bool
	verbose       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trrecon",
	Short: "Reconcile field event logs against voyage schedules",
	Long: `trrecon reconciles raw field event logs (CSV or XLSX) against a
canonical voyage-schedule document in three stages:

  pr1  resolve events and run validation gates
  pr2  generate and apply RFC6902 patches (plan.* is immutable)
  pr3  derive calendar and workday KPIs per activity

Stages can run individually or end-to-end with "run".`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var pr1Cmd = &cobra.Command{
	Use:   "pr1",
	Short: "Resolve events and run the validation gates",
	Long: `Parse the event log, resolve every event against the canonical
document, and run the four validation gates. Unlinked events are
reported with their best auto-match suggestion for curation.

Examples:
  trrecon pr1 -i events.csv -d schedule.json
  trrecon pr1 -i events.csv.gz -d schedule.json --xlsx unlinked.xlsx`,
	RunE: runPR1,
}

var pr2Cmd = &cobra.Command{
	Use:   "pr2",
	Short: "Generate and apply the event patch set",
	Long: `Re-resolve events, generate the chronological patch set, screen it
for forbidden plan modifications, and apply it. The patched document
is written to --out.

Validation-gate errors block this stage unless --force is given.

Examples:
  trrecon pr2 -i events.csv -d schedule.json -o patched.json
  trrecon pr2 -i events.csv -d schedule.json -o patched.json --force`,
	RunE: runPR2,
}

var pr3Cmd = &cobra.Command{
	Use:   "pr3",
	Short: "Derive per-activity KPIs from the patched document",
	Long: `Group events by resolved activity and derive calendar-track (and,
with shift rules, workday-track) KPIs against the patched document.

Examples:
  trrecon pr3 -i events.csv -d patched.json
  trrecon pr3 -i events.csv -d patched.json --shift-rules shifts.yaml --xlsx kpis.xlsx`,
	RunE: runPR3,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all three stages end to end",
	Long: `Run pr1, pr2 and pr3 sequentially against one event log and one
canonical document. Gate errors from pr1 stop the run unless --force
is given. The full run (reports plus patched document) is persisted
to the configured run store.

Examples:
  trrecon run -i events.csv -d schedule.json -o patched.json
  trrecon run -i events.csv -d schedule.json -o patched.json --xlsx kpis.xlsx`,
	RunE: runAll,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Profile an event-log CSV before reconciling",
	Long:  `Profile column completeness, cardinality and event-log shape metrics.`,
	RunE:  runAnalyze,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run reconciliation whenever the event log changes",
	RunE:  runWatch,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted reconciliation runs",
	RunE:  runList,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&aliasFile, "aliases", "", "Alias table YAML (overrides config)")

	for _, cmd := range []*cobra.Command{pr1Cmd, pr2Cmd, pr3Cmd, runCmd, watchCmd} {
		cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Event log path (.csv, .xlsx, optionally .gz)")
		cmd.Flags().StringVarP(&documentFile, "doc", "d", "", "Canonical document JSON path")
		cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Event log format (csv, xlsx) - auto-detected if not specified")
		cmd.Flags().StringVar(&runID, "run-id", "", "Continue an existing stored run instead of starting a new one")
		cmd.MarkFlagRequired("input")
		cmd.MarkFlagRequired("doc")
	}

	pr1Cmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Write unlinked events and alias suggestions to an XLSX workbook")

	pr2Cmd.Flags().StringVarP(&outputFile, "out", "o", "", "Patched document output path (required)")
	pr2Cmd.Flags().StringVar(&pr1ReportID, "pr1-report", "", "PR1 report id to reference in the patch document")
	pr2Cmd.Flags().BoolVar(&force, "force", false, "Proceed despite validation-gate errors")
	pr2Cmd.MarkFlagRequired("out")

	pr3Cmd.Flags().StringVar(&shiftRuleFile, "shift-rules", "", "Shift rules YAML for workday KPIs (overrides config)")
	pr3Cmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Write KPIs and alerts to an XLSX workbook")

	runCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Patched document output path (required)")
	runCmd.Flags().StringVar(&shiftRuleFile, "shift-rules", "", "Shift rules YAML for workday KPIs")
	runCmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Write KPIs and alerts to an XLSX workbook")
	runCmd.Flags().BoolVar(&force, "force", false, "Proceed despite validation-gate errors")
	runCmd.MarkFlagRequired("out")

	watchCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Patched document output path (required)")
	watchCmd.Flags().BoolVar(&force, "force", false, "Proceed despite validation-gate errors")
	watchCmd.MarkFlagRequired("out")

	analyzeCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Event log CSV path (required)")
	analyzeCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(pr1Cmd)
	rootCmd.AddCommand(pr2Cmd)
	rootCmd.AddCommand(pr3Cmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ninterrupted, shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// initTelemetry initializes OTLP tracing when the config enables it.
func initTelemetry(ctx context.Context, cfg *config.Config) func(context.Context) error {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }
	}

	otlpCfg := telemetry.DefaultOTLPConfig("trrecon")
	otlpCfg.ServiceVersion = version
	if cfg.Telemetry.Endpoint != "" {
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
	}

	shutdown, err := telemetry.Init(ctx, otlpCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// buildPipeline assembles the pipeline from config and flags.
func buildPipeline(withShiftRules bool) (*pipeline.Pipeline, error) {
	cfg := config.Global().Get()

	format := parser.ParseFormat(formatFlag)
	if format == parser.FormatUnknown {
		format = parser.DetectFormat(inputFile)
	}
	if format == parser.FormatUnknown {
		return nil, fmt.Errorf("unable to detect event log format for %s, specify with --format", inputFile)
	}
	p, err := parser.NewParser(format)
	if err != nil {
		return nil, err
	}

	path := cfg.Resolver.AliasFile
	if aliasFile != "" {
		path = aliasFile
	}
	aliases, err := config.LoadAliases(path)
	if err != nil {
		return nil, err
	}
	for from, to := range cfg.Resolver.Aliases {
		aliases[from] = to
	}

	var rules []model.ShiftRule
	if withShiftRules {
		rulePath := cfg.Rules.ShiftRulesFile
		if shiftRuleFile != "" {
			rulePath = shiftRuleFile
		}
		rules, err = config.LoadShiftRules(rulePath)
		if err != nil {
			return nil, err
		}
	}

	return pipeline.New(p, aliases, rules), nil
}

// loadInputs reads the event log and the canonical document.
func loadInputs(p *pipeline.Pipeline) ([]model.EventLogItem, model.Document, error) {
	r, cleanup, err := util.OpenFile(inputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening event log: %w", err)
	}
	defer cleanup()

	events, err := p.Parse(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing event log: %w", err)
	}

	docFile, err := os.Open(documentFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening document: %w", err)
	}
	defer docFile.Close()

	doc, err := model.DecodeDocument(docFile)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding document: %w", err)
	}
	return events, doc, nil
}

func writeDocument(path string, doc model.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()
	return doc.Encode(f)
}

// openRunStore opens the configured store. Persistence is best-effort
// for the reconciliation commands, so an unavailable store warns and
// returns nil rather than failing the run.
func openRunStore(ctx context.Context) runstore.Backend {
	store, err := runstore.Open(ctx, config.Global().Get().RunStore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run store unavailable: %v\n", err)
		return nil
	}
	return store
}

// lockDocument serializes patching of one canonical document across
// workers when the store supports distributed locking.
func lockDocument(ctx context.Context, store runstore.Backend) (func(), error) {
	locker, ok := store.(runstore.DocumentLocker)
	if !ok {
		return func() {}, nil
	}
	lock, err := locker.AcquireLock(ctx, documentFile, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

func runPR1(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	shutdown := initTelemetry(ctx, config.Global().Get())
	defer shutdown(ctx)

	p, err := buildPipeline(false)
	if err != nil {
		return err
	}
	events, doc, err := loadInputs(p)
	if err != nil {
		return err
	}

	report, err := p.RunPR1(ctx, events, doc)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderPR1(report))

	if xlsxFile != "" {
		if err := export.WriteUnlinkedWorkbook(xlsxFile, report); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("wrote %s\n", xlsxFile)
		}
	}

	store := openRunStore(ctx)
	if store != nil {
		defer store.Close()
	}
	return persistRun(ctx, store, func(run *runstore.Run) {
		run.PR1 = report
		run.SetStage(runstore.StagePR1)
	})
}

func runPR2(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	shutdown := initTelemetry(ctx, config.Global().Get())
	defer shutdown(ctx)

	p, err := buildPipeline(false)
	if err != nil {
		return err
	}
	events, doc, err := loadInputs(p)
	if err != nil {
		return err
	}

	store := openRunStore(ctx)
	if store != nil {
		defer store.Close()
		unlock, err := lockDocument(ctx, store)
		if err != nil {
			return err
		}
		defer unlock()
	}

	pr1, err := p.RunPR1(ctx, events, doc)
	if err != nil {
		return err
	}
	if errs := pr1.BlockingErrors(); len(errs) > 0 && !force {
		fmt.Print(tui.RenderPR1(pr1))
		return fmt.Errorf("%d validation errors block patching (re-run with --force to override)", len(errs))
	}

	refID := pr1ReportID
	if refID == "" {
		refID = pr1.ReportID
	}

	report, patched, err := p.RunPR2(ctx, events, doc, refID)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderPR2(report))

	if err := writeDocument(outputFile, patched); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("wrote %s\n", outputFile)
	}

	return persistRun(ctx, store, func(run *runstore.Run) {
		run.PR1 = pr1
		run.PR2 = report
		run.PatchedDocument = patched
		run.SetStage(runstore.StagePR2)
	})
}

func runPR3(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	shutdown := initTelemetry(ctx, config.Global().Get())
	defer shutdown(ctx)

	p, err := buildPipeline(true)
	if err != nil {
		return err
	}
	// --doc is expected to be the patched document from pr2
	events, patched, err := loadInputs(p)
	if err != nil {
		return err
	}

	report, err := p.RunPR3(ctx, events, patched)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderPR3(report))

	if xlsxFile != "" {
		if err := export.WriteKPIWorkbook(xlsxFile, report); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("wrote %s\n", xlsxFile)
		}
	}

	store := openRunStore(ctx)
	if store != nil {
		defer store.Close()
	}
	return persistRun(ctx, store, func(run *runstore.Run) {
		run.PR3 = report
		run.SetStage(runstore.StagePR3)
	})
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	shutdown := initTelemetry(ctx, config.Global().Get())
	defer shutdown(ctx)

	return reconcile(ctx)
}

// reconcile runs the three stages end to end and persists the run.
func reconcile(ctx context.Context) error {
	p, err := buildPipeline(true)
	if err != nil {
		return err
	}
	events, doc, err := loadInputs(p)
	if err != nil {
		return err
	}

	store := openRunStore(ctx)
	if store != nil {
		defer store.Close()
		unlock, err := lockDocument(ctx, store)
		if err != nil {
			return err
		}
		defer unlock()
	}

	pr1, err := p.RunPR1(ctx, events, doc)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderPR1(pr1))

	if errs := pr1.BlockingErrors(); len(errs) > 0 && !force {
		return fmt.Errorf("%d validation errors block patching (re-run with --force to override)", len(errs))
	}

	pr2, patched, err := p.RunPR2(ctx, events, doc, pr1.ReportID)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderPR2(pr2))

	pr3, err := p.RunPR3(ctx, events, patched)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderPR3(pr3))

	if err := writeDocument(outputFile, patched); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("wrote %s\n", outputFile)
	}

	if xlsxFile != "" {
		if err := export.WriteKPIWorkbook(xlsxFile, pr3); err != nil {
			return err
		}
	}

	return persistRun(ctx, store, func(run *runstore.Run) {
		run.PR1 = pr1
		run.PR2 = pr2
		run.PR3 = pr3
		run.PatchedDocument = patched
		run.SetStage(runstore.StagePR3)
	})
}

// persistRun saves a run record; store failures warn but never fail
// the reconciliation itself. With --run-id the existing run is
// continued so the stages can be invoked as separate processes.
func persistRun(ctx context.Context, store runstore.Backend, fill func(*runstore.Run)) error {
	if store == nil {
		return nil
	}

	var run *runstore.Run
	if runID != "" {
		loaded, err := store.Load(ctx, runID)
		if err == nil {
			run = loaded
		} else if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to load run %s: %v\n", runID, err)
			return nil
		} else {
			run = runstore.NewRun(runID, inputFile)
		}
	} else {
		run = runstore.NewRun(uuid.NewString(), inputFile)
	}

	fill(run)
	if err := store.Save(ctx, run); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist run: %v\n", err)
		return nil
	}
	if verbose {
		fmt.Printf("run %s saved to %s store\n", run.ID, store.Name())
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Global().Get()
	analyzer, err := quality.NewAnalyzer(cfg.Quality.NullThreshold)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	metrics, err := analyzer.AnalyzeCSV(ctx, inputFile)
	if err != nil {
		return err
	}
	fmt.Print(metrics.Report(cfg.Quality.NullThreshold))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	shutdown := initTelemetry(ctx, config.Global().Get())
	defer shutdown(ctx)

	cfg := config.Global().Get()
	w, err := watch.NewWatcher(time.Duration(cfg.Watch.DebounceMs) * time.Millisecond)
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnChange = func(path string) error {
		fmt.Printf("\n%s changed, reconciling...\n", path)
		if err := reconcile(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		}
		return nil
	}
	w.OnError = func(path string, err error) {
		fmt.Fprintf(os.Stderr, "watch error on %s: %v\n", path, err)
	}

	if err := w.Watch(inputFile); err != nil {
		return err
	}

	// Initial run before waiting for changes
	if err := reconcile(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
	}

	fmt.Printf("watching %s (ctrl-c to stop)\n", inputFile)
	err = w.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := runstore.Open(ctx, config.Global().Get().RunStore)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs stored")
		return nil
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-4s  %s  %s",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.Stage, run.ID, run.InputPath)
		if run.PR1 != nil {
			line += fmt.Sprintf("  (%d/%d linked)", run.PR1.LinkedCount, run.PR1.TotalEvents)
		}
		fmt.Println(line)
	}

	if verbose {
		// Full dump for scripting
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}
