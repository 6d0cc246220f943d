package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/smctune/internal/config"
	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/experiment"
	"github.com/san-kum/smctune/internal/export"
	"github.com/san-kum/smctune/internal/observability"
	"github.com/san-kum/smctune/internal/optim"
	"github.com/san-kum/smctune/internal/physics"
	"github.com/san-kum/smctune/internal/storage"
	"github.com/san-kum/smctune/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	dataDir  string
	logLevel string

	variant    string
	method     string
	scenario   string
	iterations int
	population int
	seed       int64
	live       bool
	plotFile   string

	gains   []float64
	fromRun string
	theta1  float64
	theta2  float64
	outDir  string
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "smctune",
		Short:         "sliding mode controller tuning for the double inverted pendulum",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "run directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "search controller gains with PSO or a grid",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	tuneCmd.Flags().StringVar(&variant, "variant", "", "controller variant (classical, super_twisting, adaptive, hybrid)")
	tuneCmd.Flags().StringVar(&method, "method", "", "search method (pso, grid)")
	tuneCmd.Flags().StringVar(&scenario, "scenario", "", "initial-state scenario")
	tuneCmd.Flags().IntVar(&iterations, "iterations", 0, "PSO iterations")
	tuneCmd.Flags().IntVar(&population, "population", 0, "PSO swarm size")
	tuneCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	tuneCmd.Flags().BoolVar(&live, "live", false, "show live progress")
	tuneCmd.Flags().StringVar(&plotFile, "plot", "", "write a convergence plot (.png, .svg, .pdf)")

	simCmd := &cobra.Command{
		Use:   "simulate",
		Short: "run one closed-loop simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	simCmd.Flags().StringVar(&variant, "variant", "", "controller variant")
	simCmd.Flags().Float64SliceVar(&gains, "gains", nil, "gain vector (comma separated)")
	simCmd.Flags().StringVar(&fromRun, "run", "", "take variant, gains and options from a stored run")
	simCmd.Flags().Float64Var(&theta1, "theta1", 0.1, "initial lower link angle (rad)")
	simCmd.Flags().Float64Var(&theta2, "theta2", 0, "initial upper link angle (rad)")

	validateCmd := &cobra.Command{
		Use:   "validate [variant] [gains...]",
		Short: "check a gain vector against the variant's rules",
		Args:  cobra.MinimumNArgs(1),
		RunE:  validateGains,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "render a stored run to image files",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&outDir, "out", "", "output directory (default: the run directory)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list gain presets and initial-state scenarios",
		RunE:  listPresets,
	}

	rootCmd.AddCommand(tuneCmd, simCmd, validateCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config file (or defaults), applies the persistent
// flags and starts logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		v, verr := config.NewViper("")
		if verr != nil {
			return nil, verr
		}
		cfg, err = config.NewConfigFromViper(v)
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if dataDir != "" {
		cfg.OutputDir = dataDir
	}
	if flags := cmd.Flags(); flags.Lookup("variant") != nil && flags.Changed("variant") {
		cfg.Controller.Variant = variant
		cfg.Controller.Gains = nil
		cfg.Tuning.Bounds = optim.Bounds{}
	}
	observability.InitializeLogger(cfg.Logging)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer observability.Sync()

	if cmd.Flags().Changed("method") {
		cfg.Tuning.Method = method
	}
	if cmd.Flags().Changed("iterations") {
		cfg.PSO.MaxIterations = iterations
	}
	if cmd.Flags().Changed("population") {
		cfg.PSO.Population = population
	}
	if cmd.Flags().Changed("seed") {
		cfg.PSO.Seed = seed
		cfg.Simulation.Seed = seed
	}
	if cmd.Flags().Changed("scenario") {
		states := config.GetScenario(scenario)
		if states == nil {
			return fmt.Errorf("unknown scenario %q (available: %s)", scenario, strings.Join(config.ListScenarios(), ", "))
		}
		cfg.Tuning.InitialStates = states
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.GetLogger()
	exp := experiment.New(cfg, logger)

	ctx, stop := signalContext()
	defer stop()

	var report *experiment.TuneReport
	start := time.Now()
	if live {
		total, terr := liveTotal(cfg)
		if terr != nil {
			return terr
		}
		err = tui.RunLive(ctx, cfg.Controller.Variant, total, func(ctx context.Context, obs optim.Observer) error {
			var runErr error
			report, runErr = exp.Tune(ctx, obs)
			return runErr
		})
	} else {
		fmt.Printf("tuning %s with %s...\n", cfg.Controller.Variant, cfg.Tuning.Method)
		report, err = exp.Tune(ctx)
	}
	elapsed := time.Since(start)

	canceled := errors.Is(err, context.Canceled)
	if err != nil && !(canceled && report != nil) {
		return err
	}

	st := storage.New(cfg.OutputDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, serr := st.SaveTune(report, cfg.ControllerOptions(), cfg.PSO.Seed)
	if serr != nil {
		return serr
	}
	logger.Info("tuning saved", zap.String("run_id", runID), zap.Duration("elapsed", elapsed))

	printTuneReport(exp, report, runID, elapsed)
	if canceled {
		fmt.Println(warnStyle.Render("canceled: best gains so far were saved"))
	}

	if plotFile != "" && report.Result != nil {
		if err := export.Convergence(report.Result.History, plotFile); err != nil {
			return err
		}
		fmt.Printf("convergence plot: %s\n", plotFile)
	}
	return nil
}

func printTuneReport(exp *experiment.Experiment, report *experiment.TuneReport, runID string, elapsed time.Duration) {
	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s / %s", report.Variant, report.Method)))
	row := func(label, value string) {
		fmt.Printf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), valueStyle.Render(value))
	}
	row("run id", runID)
	row("elapsed", elapsed.Round(time.Millisecond).String())
	row("cost", fmt.Sprintf("%.6g", report.Cost))
	if report.Fitness != report.Cost {
		row("fitness", fmt.Sprintf("%.6g", report.Fitness))
	}
	if report.Result != nil {
		row("stop", string(report.Result.Stop))
		row("iterations", fmt.Sprintf("%d", report.Result.Iterations))
		row("evaluations", fmt.Sprintf("%d", report.Result.Evaluations))
	}
	row("invalid", fmt.Sprintf("%d", report.Stats.Invalid))
	row("diverged", fmt.Sprintf("%d", report.Stats.Sim.Diverged))
	if report.Degenerate {
		fmt.Println("  " + warnStyle.Render("baseline is degenerate, normalized terms fell back to raw values"))
	}

	names := exp.Controls().GainNames(report.Variant)
	fmt.Println()
	fmt.Println(titleStyle.Render("gains"))
	for i, g := range report.Gains {
		name := fmt.Sprintf("g%d", i)
		if i < len(names) {
			name = names[i]
		}
		row(name, fmt.Sprintf("%.6g", g))
	}

	if report.Result != nil && len(report.Result.History) > 1 {
		best := make([]float64, len(report.Result.History))
		for i, r := range report.Result.History {
			best[i] = r.Best
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(best,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("best cost per iteration"),
		))
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer observability.Sync()

	if fromRun != "" {
		rec, err := storage.New(cfg.OutputDir).Load(fromRun)
		if err != nil {
			return err
		}
		ctrl, err := rec.ControllerConfig(control.DefaultRegistry())
		if err != nil {
			return fmt.Errorf("run %s: %w", fromRun, err)
		}
		cfg.Controller.Variant = string(ctrl.Variant())
		cfg.Controller.Gains = ctrl.Gains()
		cfg.Controller.Options = ctrl.Options()
		cfg.Tuning.Bounds = optim.Bounds{}
	}
	if len(gains) > 0 {
		cfg.Controller.Gains = gains
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	x0 := make(dynamo.State, physics.StateDim)
	x0[physics.IdxTheta1] = theta1
	x0[physics.IdxTheta2] = theta2

	ctx, stop := signalContext()
	defer stop()

	exp := experiment.New(cfg, observability.GetLogger())
	start := time.Now()
	report, err := exp.Simulate(ctx, nil, x0)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	st := storage.New(cfg.OutputDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.SaveSimulation(report, cfg.ControllerOptions(), cfg.Simulation.Seed)
	if err != nil {
		return err
	}

	res := report.Result
	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", res.Steps)
	if res.ValidUntil < res.Steps {
		fmt.Println(warnStyle.Render(fmt.Sprintf("diverged at step %d: %s", res.ValidUntil, res.Reason)))
	}

	theta := make([]float64, len(res.States))
	for i, s := range res.States {
		theta[i] = s[physics.IdxTheta1]
	}
	if len(theta) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(theta, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("theta1 (rad)")))
	}
	if len(res.Controls) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(res.Controls, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("u (N)")))
	}

	b := report.Breakdown
	fmt.Println("\ncost:")
	fmt.Printf("  state: %.6g  control: %.6g  rate: %.6g  surface: %.6g\n", b.Normalized.ISE, b.Normalized.Control, b.Normalized.Rate, b.Normalized.Surface)
	fmt.Printf("  penalty: %.6g  total: %.6g\n", b.Penalty, b.Total)

	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(res.Metrics) {
		fmt.Printf("  %s: %.6f\n", name, res.Metrics[name])
	}

	c := report.Chattering
	fmt.Println("\nchattering:")
	fmt.Printf("  high_freq_ratio: %.4f\n", c.HighFreqRatio)
	fmt.Printf("  dominant_freq: %.2f Hz\n", c.DominantFreq)
	fmt.Printf("  total_variation: %.4f\n", c.TotalVariation)
	fmt.Printf("  sign_changes: %d\n", c.SignChanges)
	return nil
}

func validateGains(cmd *cobra.Command, args []string) error {
	v, err := control.ParseVariant(args[0])
	if err != nil {
		return err
	}
	vals := make([]float64, 0, len(args)-1)
	for _, a := range args[1:] {
		for _, f := range strings.Split(a, ",") {
			if f = strings.TrimSpace(f); f == "" {
				continue
			}
			g, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("invalid gain %q: %w", f, err)
			}
			vals = append(vals, g)
		}
	}

	reg := control.DefaultRegistry()
	if len(vals) == 0 {
		p, ok := config.GetPreset(v)
		if !ok {
			return fmt.Errorf("no preset for %s", v)
		}
		vals = p.Gains
	}

	cfg, err := reg.Build(v, vals, control.DefaultOptions())
	var se *control.StructuralError
	if errors.As(err, &se) {
		return fmt.Errorf("invalid %s gains: %s = %g violates %s", v, se.Name, se.Value, se.Constraint)
	}
	if err != nil {
		return err
	}

	fmt.Println(okStyle.Render("valid") + " " + string(cfg.Variant()))
	s := cfg.Surface()
	fmt.Printf("  surface: k1=%g k2=%g lambda1=%g lambda2=%g\n", s.K1, s.K2, s.Lambda1, s.Lambda2)
	names := reg.GainNames(v)
	for i, g := range cfg.Gains() {
		fmt.Printf("  %s = %g\n", names[i], g)
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.OutputDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tVARIANT\tMETHOD\tCOST\tSTOP")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.6g\t%s\n",
			run.ID,
			run.Kind,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Variant,
			dash(run.Method),
			run.Cost,
			dash(run.Stop),
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.OutputDir)
	rec, err := st.Load(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", rec.ID)
	fmt.Printf("kind: %s\n", rec.Kind)
	fmt.Printf("variant: %s\n\n", rec.Variant)

	if rec.Kind == storage.KindTune {
		history, err := st.LoadHistory(runID)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return fmt.Errorf("no data to plot")
		}
		best := make([]float64, len(history))
		mean := make([]float64, len(history))
		for i, r := range history {
			best[i] = r.Best
			mean[i] = r.Mean
		}
		fmt.Println(asciigraph.Plot(best, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("best cost")))
		if mean = finiteOnly(mean); len(mean) > 0 {
			fmt.Println()
			fmt.Println(asciigraph.Plot(mean, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("mean cost")))
		}
		return nil
	}

	states, controls, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	captions := []string{"cart position (m)", "theta1 (rad)", "theta2 (rad)"}
	for idx, caption := range captions {
		data := make([]float64, len(states))
		for i := range states {
			if idx < len(states[i]) {
				data[i] = states[i][idx]
			}
		}
		fmt.Println(asciigraph.Plot(data, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption(caption)))
		fmt.Println()
	}
	if len(controls) > 1 {
		fmt.Println(asciigraph.Plot(controls, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("u (N)")))
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.OutputDir)
	rec, err := st.Load(runID)
	if err != nil {
		return err
	}
	dir := outDir
	if dir == "" {
		dir = st.Dir(runID)
	}

	var paths []string
	switch rec.Kind {
	case storage.KindTune:
		history, err := st.LoadHistory(runID)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "convergence.png")
		if err := export.Convergence(history, path); err != nil {
			return err
		}
		paths = append(paths, path)
	default:
		states, controls, times, err := st.LoadStates(runID)
		if err != nil {
			return err
		}
		if paths, err = export.Trajectory(times, states, controls, dir); err != nil {
			return err
		}
	}

	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	reg := control.DefaultRegistry()

	fmt.Println(titleStyle.Render("presets"))
	for _, name := range config.ListPresets() {
		v := control.Variant(name)
		p, _ := config.GetPreset(v)
		fmt.Printf("\n  %s\n", valueStyle.Render(name))
		names := reg.GainNames(v)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "    GAIN\tDEFAULT\tLOWER\tUPPER")
		for i, g := range p.Gains {
			fmt.Fprintf(w, "    %s\t%g\t%g\t%g\n", names[i], g, p.Lower[i], p.Upper[i])
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("plants"))
	for _, name := range experiment.NewRegistry().ListPlants() {
		fmt.Printf("  %s\n", name)
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("scenarios"))
	for _, name := range config.ListScenarios() {
		states := config.GetScenario(name)
		fmt.Printf("  %-8s %d initial states\n", name, len(states))
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func finiteOnly(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// liveTotal is the number of observer callbacks a tuning run makes: one
// per PSO iteration, or one per grid batch.
func liveTotal(cfg *config.Config) (int, error) {
	if cfg.Tuning.Method != config.MethodGrid {
		return cfg.PSO.MaxIterations, nil
	}
	bounds, err := cfg.Bounds()
	if err != nil {
		return 0, err
	}
	points := 1
	for i := 0; i < bounds.Dim(); i++ {
		points *= cfg.Tuning.GridLevels
	}
	batch := max(cfg.PSO.Population, 1)
	return (points + batch - 1) / batch, nil
}
