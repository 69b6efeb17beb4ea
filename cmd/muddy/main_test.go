package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/muddy/codec"
	"github.com/wippyai/muddy/pipeline"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-include", "com.app., org.x.", "-seed", "9", "-keep-plaintext", "app.jar"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if f.input != "app.jar" || f.seed != 9 || !f.keepPlain {
		t.Errorf("flags = %+v", f)
	}
	for _, name := range []string{"include", "seed", "keep-plaintext"} {
		if !f.set[name] {
			t.Errorf("%s not marked as set", name)
		}
	}
	if f.set["verify"] {
		t.Error("verify marked as set")
	}

	for _, args := range [][]string{{}, {"a.jar", "b.jar"}, {"-nope", "a.jar"}} {
		if _, err := parseFlags(args, io.Discard); err == nil {
			t.Errorf("parseFlags(%q) succeeded", args)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" com.a. ,,org.b.")
	if len(got) != 2 || got[0] != "com.a." || got[1] != "org.b." {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") not empty")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	toml := `
[obfuscate]
include = ["com.app."]

[codec]
seed = 5
wasm = "codec.wasm"

[pipeline]
workers = 3
`
	if err := os.WriteFile(filepath.Join(dir, "muddy.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	input := filepath.Join(dir, "app.jar")

	t.Run("file", func(t *testing.T) {
		cfg, err := loadConfig(&cliFlags{input: input, set: map[string]bool{}})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Codec.Seed != 5 || cfg.Pipeline.Workers != 3 {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.WasmPath() != filepath.Join(dir, "codec.wasm") {
			t.Errorf("WasmPath = %s", cfg.WasmPath())
		}
	})

	t.Run("overrides", func(t *testing.T) {
		f := &cliFlags{
			input:   input,
			include: "org.x.",
			seed:    7,
			wasm:    "",
			workers: 8,
			verify:  true,
			set:     map[string]bool{"include": true, "seed": true, "wasm": true, "workers": true, "verify": true},
		}
		cfg, err := loadConfig(f)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Obfuscate.Include[0] != "org.x." || cfg.Codec.Seed != 7 || cfg.Pipeline.Workers != 8 {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.WasmPath() != "" || !cfg.Pipeline.Verify {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		f := &cliFlags{input: input, randomKeys: true, set: map[string]bool{"random-keys": true}}
		if _, err := loadConfig(f); err == nil {
			t.Error("random keys with a seed accepted")
		}
	})

	t.Run("no include", func(t *testing.T) {
		empty := t.TempDir()
		f := &cliFlags{input: filepath.Join(empty, "x.jar"), set: map[string]bool{}}
		if _, err := loadConfig(f); err == nil {
			t.Error("config without includes accepted")
		}
	})
}

func TestRenderSummary(t *testing.T) {
	rep := &pipeline.Report{
		Input:    "in.jar",
		Output:   "out.jar",
		Warnings: []string{"in.jar is signed"},
		Classes: []pipeline.ClassResult{
			{Path: "A.class", InputHash: 1, OutputHash: 2},
			{Path: "B.class", Err: "bad magic"},
		},
		Totals: pipeline.Totals{Classes: 2, Changed: 1, Failed: 1},
	}
	rep.Totals.Stats.Literals = 4
	got := renderSummary(rep, false)
	for _, want := range []string{"in.jar -> out.jar", "literals   4", "warning: in.jar is signed", "failed: B.class: bad magic"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "done") {
		t.Error("summary reports done despite failures")
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("plain summary contains escape codes")
	}
}

func TestRunClassFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "Secret.class")
	if err := os.WriteFile(in, secretClass(t), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out", "Secret.class")
	report := filepath.Join(dir, "report.cbor")

	f, err := parseFlags([]string{"-include", "com.app.", "-verify", "-o", out, "-report", report, in}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	stdout := os.Stdout
	os.Stdout, _ = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	defer func() { os.Stdout = stdout }()
	if err := run(f); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := pipeline.UnmarshalReport(data)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Totals.Changed != 1 || !rep.Classes[0].Verified {
		t.Errorf("report = %+v", rep)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestNewCodec(t *testing.T) {
	cfg, err := loadConfig(&cliFlags{
		input:   filepath.Join(t.TempDir(), "a.jar"),
		include: "com.",
		seed:    3,
		set:     map[string]bool{"include": true, "seed": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	cdc, release, err := newCodec(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	tokens, err := cdc.Encode("hello")
	if err != nil {
		t.Fatal(err)
	}
	if s, err := codec.Decode(tokens); err != nil || s != "hello" {
		t.Errorf("round trip = %q, %v", s, err)
	}

	cfg.Codec.Wasm = filepath.Join(t.TempDir(), "missing.wasm")
	if _, _, err := newCodec(context.Background(), cfg); err == nil {
		t.Error("missing wasm codec accepted")
	}
	cfg.Pipeline.Verify = true
	if _, _, err := newProcessor(context.Background(), cfg); err == nil {
		t.Error("verify with wasm codec accepted")
	}
}

func TestInteractiveModel(t *testing.T) {
	cancelled := false
	m := newInteractiveModel("in.jar", "out.jar", func() { cancelled = true })

	m.Update(progressMsg(pipeline.Event{Result: pipeline.ClassResult{Path: "A.class"}, Done: 1, Total: 2}))
	if m.done != 1 || m.total != 2 || !strings.Contains(m.View(), "1/2") {
		t.Errorf("progress not shown: %s", m.View())
	}

	rep := &pipeline.Report{Classes: []pipeline.ClassResult{
		{Path: "A.class", Name: "com/app/A", Eligible: true, InputHash: 1, OutputHash: 2},
		{Path: "B.class"},
	}}
	m.Update(finishedMsg{report: rep})
	if m.state != stateBrowse {
		t.Fatalf("state = %v, want browse", m.state)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Errorf("selected = %d, want 1", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateDetail || !strings.Contains(m.View(), "com/app/A") {
		t.Errorf("detail view = %s", m.View())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateBrowse {
		t.Errorf("esc left state %v", m.state)
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}); cmd == nil || !cancelled {
		t.Error("q did not quit")
	}
}

func TestInteractiveQuitWhileRunning(t *testing.T) {
	m := newInteractiveModel("in.jar", "out.jar", func() {})
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC}); cmd != nil {
		t.Error("quit before the pipeline stopped")
	}
	if _, cmd := m.Update(finishedMsg{err: context.Canceled}); cmd == nil {
		t.Error("no quit after the pipeline stopped")
	}
}

func TestStartRunWaitsForPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var returned atomic.Bool
	msgs := make(chan tea.Msg, 1)

	done := startRun(ctx, func(ctx context.Context) (*pipeline.Report, error) {
		close(started)
		<-ctx.Done()
		returned.Store(true)
		return &pipeline.Report{}, ctx.Err()
	}, func(msg tea.Msg) { msgs <- msg })

	<-started
	select {
	case <-done:
		t.Fatal("done closed while the pipeline was running")
	default:
	}

	cancel()
	<-done
	if !returned.Load() {
		t.Error("done closed before the pipeline returned")
	}
	msg, ok := (<-msgs).(finishedMsg)
	if !ok || !errors.Is(msg.err, context.Canceled) || msg.report != nil {
		t.Errorf("finished = %+v", msg)
	}
}
