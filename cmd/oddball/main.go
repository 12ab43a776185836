// Package main provides the CLI entrypoint for oddball.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/oddball/internal/classifier"
	"github.com/verte-zerg/oddball/internal/config"
	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/learn"
	"github.com/verte-zerg/oddball/internal/model"
	"github.com/verte-zerg/oddball/internal/recording"
	"github.com/verte-zerg/oddball/internal/stats"
	"github.com/verte-zerg/oddball/internal/store"
	"github.com/verte-zerg/oddball/internal/stream"
	"github.com/verte-zerg/oddball/internal/synth"
)

const (
	defaultOSCHost = "127.0.0.1"
	defaultOSCPort = 9000
	defaultLast    = 20
)

var (
	verbose bool
	dbPath  string

	clsModel         string
	clsDevice        int
	clsChannels      []string
	clsTrainingClass int
	clsCVSplits      int
	clsTestSize      float64
	clsSeed          int64
	clsScaler        string
	clsOversample    bool
	clsRescale       float64
	epochStart       float64
	epochEnd         float64
	noStore          bool

	decideTrain string
	decideProba bool
	streamOSC   bool
	streamHost  string
	streamPort  int

	simDevice    int
	simSeed      int64
	simCycles    int
	simAttended  int
	simSequence  []int
	simAmplitude float64
	simNoise     float64
	simSentinels bool

	runsLast int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oddball",
		Short:         "Train and apply oddball trial classifiers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "SQLite database path")

	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newDecideCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

func addClassifierFlags(cmd *cobra.Command) {
	defaults := classifier.DefaultConfig()
	cmd.Flags().StringVar(&clsModel, "model", defaults.Model, "model preset ("+strings.Join(learn.Names(), ", ")+")")
	cmd.Flags().IntVar(&clsDevice, "device", defaults.Device, "board id (see: oddball devices)")
	cmd.Flags().StringSliceVar(&clsChannels, "channels", nil, "EEG channel subset (default: all channels of the board)")
	cmd.Flags().IntVar(&clsTrainingClass, "training-class", defaults.TrainingClass, "stimulus code of the target class")
	cmd.Flags().IntVar(&clsCVSplits, "cv-splits", defaults.CVSplits, "cross-validation folds")
	cmd.Flags().Float64Var(&clsTestSize, "test-size", defaults.TestSize, "share of epochs held out for evaluation (0-1)")
	cmd.Flags().Int64Var(&clsSeed, "seed", defaults.Seed, "random seed")
	cmd.Flags().StringVar(&clsScaler, "scaler", learn.StandardScaling, "feature scaler (standard, minmax, none)")
	cmd.Flags().BoolVar(&clsOversample, "oversample", false, "oversample the minority class before fitting")
	cmd.Flags().Float64Var(&clsRescale, "rescale", defaults.Rescale, "divide raw samples by this value")
	cmd.Flags().Float64Var(&epochStart, "epoch-start", defaults.Window.Start, "epoch start in seconds relative to the stimulus")
	cmd.Flags().Float64Var(&epochEnd, "epoch-end", defaults.Window.End, "epoch end in seconds relative to the stimulus")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not record the run in the database")
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <recording>",
		Short: "Train a classifier on a recording and report its scores",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrainCmd,
	}
	addClassifierFlags(cmd)
	return cmd
}

func runTrainCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, opts, err := resolveClassifierConfig(cmd, fileCfg)
	if err != nil {
		return err
	}
	logger := newLogger(verbose)
	cls, err := classifier.New(cfg, logger)
	if err != nil {
		return err
	}
	_, err = trainAndRecord(cmd, cls, opts, args[0])
	return err
}

func trainAndRecord(cmd *cobra.Command, cls *classifier.Classifier, opts classifier.TrainOptions, path string) (model.TrainingRun, error) {
	rec, err := recording.Load(path)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to load recording: %w", err)
	}
	run, err := cls.Train(cmd.Context(), rec, opts)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to train: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderTrainingRun(out, run, stats.ShouldUseColor(out)); err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to write output: %w", err)
	}
	if noStore {
		return run, nil
	}
	if err := withStore(func(st *store.Store) error {
		return st.InsertRun(cmd.Context(), run)
	}); err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to store run: %w", err)
	}
	return run, nil
}

func newDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide --train <recording> <recording>...",
		Short: "Train on one recording and decide the attended stimulus of others",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDecideCmd,
	}
	addClassifierFlags(cmd)
	cmd.Flags().StringVar(&decideTrain, "train", "", "training recording")
	cmd.Flags().BoolVar(&decideProba, "proba", true, "score stimuli by class probabilities instead of labels")
	cmd.Flags().BoolVar(&streamOSC, "osc", false, "publish decisions over OSC")
	cmd.Flags().StringVar(&streamHost, "osc-host", defaultOSCHost, "OSC destination host")
	cmd.Flags().IntVar(&streamPort, "osc-port", defaultOSCPort, "OSC destination port")
	return cmd
}

func runDecideCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, opts, err := resolveClassifierConfig(cmd, fileCfg)
	if err != nil {
		return err
	}
	applyBoolConfig(cmd, "osc", &streamOSC, fileCfg.Stream.Enabled)
	applyStringConfig(cmd, "osc-host", &streamHost, fileCfg.Stream.Host)
	applyIntConfig(cmd, "osc-port", &streamPort, fileCfg.Stream.Port)
	if decideTrain == "" {
		return fmt.Errorf("--train must name a training recording")
	}
	if streamPort <= 0 || streamPort > 65535 {
		return fmt.Errorf("--osc-port must be between 1 and 65535")
	}

	logger := newLogger(verbose)
	cls, err := classifier.New(cfg, logger)
	if err != nil {
		return err
	}
	if streamOSC {
		pub := stream.NewOSC(streamHost, streamPort, logger)
		defer func() {
			if cerr := pub.Close(); cerr != nil {
				logErrf("failed to close osc stream: %v\n", cerr)
			}
		}()
		cls.SetPublisher(pub)
	}

	run, err := trainAndRecord(cmd, cls, opts, decideTrain)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	useColor := stats.ShouldUseColor(out)
	var decisions []model.Decision
	for _, path := range args {
		rec, err := recording.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load recording: %w", err)
		}
		pred, err := cls.Predict(cmd.Context(), rec, classifier.PredictOptions{Probabilities: decideProba, Group: true})
		if err != nil {
			return fmt.Errorf("failed to decide %s: %w", path, err)
		}
		if pred == nil {
			logErrf("%s: stimulus sequence %s not found, skipping\n", path, stats.FormatSequence(cls.Sequence()))
			continue
		}
		if _, err := fmt.Fprintln(out, filepath.Base(path)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if err := stats.RenderDecision(out, *pred.Decision, useColor); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		decisions = append(decisions, *pred.Decision)
	}

	if noStore || len(decisions) == 0 {
		return nil
	}
	return withStore(func(st *store.Store) error {
		for _, d := range decisions {
			if _, err := st.InsertDecision(cmd.Context(), run.ID, time.Now(), d); err != nil {
				return fmt.Errorf("failed to store decision: %w", err)
			}
		}
		return nil
	})
}

func newSimulateCmd() *cobra.Command {
	defaults := synth.DefaultParams()
	cmd := &cobra.Command{
		Use:   "simulate <output>",
		Short: "Write a synthetic oddball recording (.edf or BrainFlow .csv)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulateCmd,
	}
	cmd.Flags().IntVar(&simDevice, "device", layout.Synthetic, "board id whose layout is simulated")
	cmd.Flags().Int64Var(&simSeed, "seed", classifier.DefaultSeed, "random seed")
	cmd.Flags().IntVar(&simCycles, "cycles", defaults.Cycles, "stimulus sequence repetitions")
	cmd.Flags().IntVar(&simAttended, "attended", defaults.Attended, "stimulus code that evokes a response")
	cmd.Flags().IntSliceVar(&simSequence, "sequence", defaults.Sequence, "stimulus codes of one cycle")
	cmd.Flags().Float64Var(&simAmplitude, "amplitude", defaults.Amplitude, "evoked response peak in uV")
	cmd.Flags().Float64Var(&simNoise, "noise", defaults.Noise, "background noise standard deviation in uV")
	cmd.Flags().BoolVar(&simSentinels, "sentinels", false, "write marker code 99 at both ends")
	return cmd
}

func runSimulateCmd(cmd *cobra.Command, args []string) error {
	p := synth.DefaultParams()
	p.Cycles = simCycles
	p.Attended = simAttended
	p.Sequence = simSequence
	p.Amplitude = simAmplitude
	p.Noise = simNoise
	p.Sentinels = simSentinels
	if err := validateSimulation(p); err != nil {
		return err
	}
	rec, err := synth.New(simSeed).Recording(simDevice, p)
	if err != nil {
		return err
	}
	if err := recording.Save(args[0], rec, simDevice); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d rows x %d samples)\n", args[0], len(rec.Rows), rec.Samples())
	return err
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List training runs or show one run with its decisions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRunsCmd,
	}
	cmd.Flags().IntVar(&runsLast, "last", defaultLast, "limit to last N runs (0 for all)")
	return cmd
}

func runRunsCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withStore(func(st *store.Store) error {
		if len(args) == 0 {
			runs, err := st.ListRuns(cmd.Context(), runsLast)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return stats.RenderRuns(out, runs)
		}
		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no training run matches %q", args[0])
			}
			return err
		}
		useColor := stats.ShouldUseColor(out)
		if err := stats.RenderTrainingRun(out, run, useColor); err != nil {
			return err
		}
		decisions, err := st.ListDecisions(cmd.Context(), run.ID)
		if err != nil {
			return fmt.Errorf("failed to list decisions: %w", err)
		}
		for _, rec := range decisions {
			if _, err := fmt.Fprintln(out, rec.CreatedAt.Local().Format("2006-01-02 15:04:05")); err != nil {
				return err
			}
			if err := stats.RenderDecision(out, rec.Decision, useColor); err != nil {
				return err
			}
		}
		return nil
	})
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List supported boards and their channel layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return stats.RenderDevices(cmd.OutOrStdout())
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// resolveClassifierConfig merges config file values under the flags of cmd.
func resolveClassifierConfig(cmd *cobra.Command, fileCfg config.FileConfig) (classifier.Config, classifier.TrainOptions, error) {
	c := fileCfg.Classifier
	applyStringConfig(cmd, "model", &clsModel, c.Model)
	applyIntConfig(cmd, "device", &clsDevice, c.Device)
	applyStringsConfig(cmd, "channels", &clsChannels, c.Channels)
	applyIntConfig(cmd, "training-class", &clsTrainingClass, c.TrainingClass)
	applyIntConfig(cmd, "cv-splits", &clsCVSplits, c.CVSplits)
	applyFloatConfig(cmd, "test-size", &clsTestSize, c.TestSize)
	applyInt64Config(cmd, "seed", &clsSeed, c.Seed)
	applyStringConfig(cmd, "scaler", &clsScaler, c.Scaler)
	applyBoolConfig(cmd, "oversample", &clsOversample, c.Oversample)
	applyFloatConfig(cmd, "rescale", &clsRescale, c.Rescale)
	applyFloatConfig(cmd, "epoch-start", &epochStart, fileCfg.Epoch.Start)
	applyFloatConfig(cmd, "epoch-end", &epochEnd, fileCfg.Epoch.End)

	cfg := classifier.Config{
		Model:         clsModel,
		Device:        clsDevice,
		Channels:      clsChannels,
		Window:        model.Window{Start: epochStart, End: epochEnd},
		CVSplits:      clsCVSplits,
		TestSize:      clsTestSize,
		TrainingClass: clsTrainingClass,
		Seed:          clsSeed,
		Rescale:       clsRescale,
	}
	opts := classifier.TrainOptions{Scaler: clsScaler, Oversample: clsOversample, Seed: clsSeed}
	if err := validateConfig(cfg, opts); err != nil {
		return classifier.Config{}, classifier.TrainOptions{}, err
	}
	return cfg, opts, nil
}

func withStore(fn func(*store.Store) error) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	return fn(st)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyStringsConfig(cmd *cobra.Command, name string, target, value *[]string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = append([]string(nil), (*value)...)
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	defaults := classifier.DefaultConfig()
	return fmt.Sprintf(`# oddball configuration
# Uncomment a value to enable it. CLI flags override config values.

[classifier]
# model = %q            # Model preset (%s)
# device = %d              # Board id, see: oddball devices
# channels = ["Cz", "Pz"]  # EEG channel subset (default: all channels)
# training-class = %d       # Stimulus code of the target class
# cv-splits = %d           # Cross-validation folds
# test-size = %.2f         # Share of epochs held out for evaluation (0-1)
# seed = %d                # Random seed
# scaler = %q       # Feature scaler (standard, minmax, none)
# oversample = false       # Oversample the minority class before fitting
# rescale = %.0f      # Divide raw samples by this value

[epoch]
# start = %.2f            # Epoch start in seconds relative to the stimulus
# end = %.2f               # Epoch end in seconds relative to the stimulus

[stream]
# enabled = false          # Publish decisions over OSC
# host = %q       # OSC destination host
# port = %d              # OSC destination port
`,
		defaults.Model,
		strings.Join(learn.Names(), ", "),
		defaults.Device,
		defaults.TrainingClass,
		defaults.CVSplits,
		defaults.TestSize,
		defaults.Seed,
		learn.StandardScaling,
		defaults.Rescale,
		defaults.Window.Start,
		defaults.Window.End,
		defaultOSCHost,
		defaultOSCPort,
	)
}

func validateConfig(cfg classifier.Config, opts classifier.TrainOptions) error {
	if _, err := learn.NewScaler(opts.Scaler); err != nil {
		return fmt.Errorf("--scaler: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

func validateSimulation(p synth.Params) error {
	if p.Cycles <= 0 {
		return fmt.Errorf("--cycles must be > 0")
	}
	if len(p.Sequence) == 0 {
		return fmt.Errorf("--sequence must not be empty")
	}
	for _, code := range p.Sequence {
		if code <= 0 || code >= model.SentinelCode {
			return fmt.Errorf("--sequence codes must be in 1..%d, got %d", model.SentinelCode-1, code)
		}
	}
	if p.Noise < 0 {
		return fmt.Errorf("--noise must be >= 0")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
