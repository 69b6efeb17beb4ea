// Command muddy replaces the string literals of JVM class files with
// encoded decoder calls.
//
// Usage:
//
//	muddy [flags] <input.jar|classes-dir|File.class>
//
// Settings come from muddy.toml (found next to the input or given with
// -config); flags override the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/codec"
	"github.com/wippyai/muddy/codec/wasmcodec"
	"github.com/wippyai/muddy/config"
	"github.com/wippyai/muddy/errors"
	"github.com/wippyai/muddy/obfuscate"
	"github.com/wippyai/muddy/pipeline"
)

// cliFlags holds the parsed command line.
type cliFlags struct {
	set         map[string]bool
	configPath  string
	include     string
	exclude     string
	output      string
	wasm        string
	report      string
	input       string
	seed        uint64
	workers     int
	randomKeys  bool
	keepPlain   bool
	verify      bool
	verbose     bool
	logJSON     bool
	interactive bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	f := &cliFlags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("muddy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to muddy.toml (default: search upwards from the input)")
	fs.StringVar(&f.include, "include", "", "Class name prefixes to transform (comma-separated, e.g. com.app.)")
	fs.StringVar(&f.exclude, "exclude", "", "Class name prefixes to leave alone (comma-separated)")
	fs.StringVar(&f.output, "o", "", "Output path (default: rewrite the input in place)")
	fs.Uint64Var(&f.seed, "seed", 0, "Seed for deterministic literal keys")
	fs.BoolVar(&f.randomKeys, "random-keys", false, "Draw a random key per literal")
	fs.StringVar(&f.wasm, "wasm", "", "WebAssembly codec module")
	fs.BoolVar(&f.keepPlain, "keep-plaintext", false, "Leave rewritten literals readable in the constant pool")
	fs.IntVar(&f.workers, "workers", 0, "Classes transformed concurrently")
	fs.StringVar(&f.report, "report", "", "Write a CBOR report to this path")
	fs.BoolVar(&f.verify, "verify", false, "Decode every rewritten literal and compare")
	fs.BoolVar(&f.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&f.logJSON, "log-json", false, "Log as JSON")
	fs.BoolVar(&f.interactive, "i", false, "Interactive mode with TUI")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: muddy [flags] <input.jar|classes-dir|File.class>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.InvalidInput(errors.PhaseConfig, "expected exactly one input")
	}
	f.input = fs.Arg(0)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(f *cliFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		start := f.input
		if info, serr := os.Stat(start); serr != nil || !info.IsDir() {
			start = filepath.Dir(start)
		}
		cfg, err = config.FindAndLoad(start)
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	if f.set["include"] {
		cfg.Obfuscate.Include = splitList(f.include)
	}
	if f.set["exclude"] {
		cfg.Obfuscate.Exclude = splitList(f.exclude)
	}
	if f.set["seed"] {
		cfg.Codec.Seed = f.seed
	}
	if f.set["random-keys"] {
		cfg.Codec.RandomKeys = f.randomKeys
	}
	if f.set["wasm"] {
		cfg.Codec.Wasm = f.wasm
		cfg.Dir = ""
	}
	if f.set["keep-plaintext"] {
		cfg.Obfuscate.KeepPlaintext = f.keepPlain
	}
	if f.set["workers"] && f.workers > 0 {
		cfg.Pipeline.Workers = f.workers
	}
	if f.set["report"] {
		cfg.Pipeline.Report = f.report
	}
	if f.set["verify"] {
		cfg.Pipeline.Verify = f.verify
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Obfuscate.Include) == 0 && len(cfg.Obfuscate.IncludePatterns) == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "no classes selected: set -include or obfuscate.include")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(verbose, jsonOutput bool) (*zap.Logger, error) {
	var zc zap.Config
	if jsonOutput {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// newCodec returns the configured codec and a function releasing it.
func newCodec(ctx context.Context, cfg *config.Config) (muddy.Codec, func(), error) {
	path := cfg.WasmPath()
	if path == "" {
		var opts []codec.Option
		if cfg.Codec.RandomKeys {
			opts = append(opts, codec.WithRandomKeys())
		} else {
			opts = append(opts, codec.WithSeed(cfg.Codec.Seed))
		}
		return codec.New(opts...), func() {}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, "read codec "+path, err)
	}
	wc, err := wasmcodec.New(ctx, data, &wasmcodec.Config{MemoryLimitPages: cfg.Codec.MemoryLimitPages})
	if err != nil {
		return nil, nil, err
	}
	return wc, func() { wc.Close(context.Background()) }, nil
}

// newProcessor assembles the transformer and pipeline for cfg.
func newProcessor(ctx context.Context, cfg *config.Config, opts ...pipeline.Option) (*pipeline.Processor, func(), error) {
	if cfg.Pipeline.Verify && cfg.Codec.Wasm != "" {
		return nil, nil, errors.InvalidInput(errors.PhaseConfig, "verify needs the built-in codec")
	}
	cdc, closeCodec, err := newCodec(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	tr, err := obfuscate.New(cfg.ObfuscateConfig(cdc))
	if err != nil {
		closeCodec()
		return nil, nil, err
	}
	opts = append([]pipeline.Option{pipeline.WithWorkers(cfg.Pipeline.Workers)}, opts...)
	if cfg.Pipeline.Verify {
		opts = append(opts, pipeline.WithVerifier(pipeline.NewVerifier(cfg.DecoderRef(), nil)))
	}
	return pipeline.New(tr, opts...), closeCodec, nil
}

func writeReport(path string, rep *pipeline.Report) error {
	data, err := pipeline.MarshalReport(rep)
	if err != nil {
		return errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "encode report", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "write report "+path, err)
	}
	return nil
}

func main() {
	f, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f *cliFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger, err := newLogger(f.verbose, f.logJSON)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	if f.interactive {
		// the TUI owns the terminal
		logger = zap.NewNop()
	}
	obfuscate.SetLogger(logger)
	pipeline.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := f.output
	if out == "" {
		out = f.input
	}

	if f.interactive {
		return runInteractive(ctx, cfg, f.input, out)
	}

	proc, closeCodec, err := newProcessor(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCodec()

	rep, err := proc.Run(ctx, f.input, out)
	if err != nil {
		return err
	}
	if cfg.Pipeline.Report != "" {
		if err := writeReport(cfg.Pipeline.Report, rep); err != nil {
			return err
		}
	}
	color := term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Fprint(os.Stdout, renderSummary(rep, color))
	if rep.Totals.Failed > 0 && cfg.Pipeline.Verify {
		return fmt.Errorf("%d classes failed", rep.Totals.Failed)
	}
	return nil
}
