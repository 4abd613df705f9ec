package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/cbegin/cvseq-go"
	"github.com/cbegin/cvseq-go/internal/config"
	"github.com/cbegin/cvseq-go/internal/logger"
	"github.com/cbegin/cvseq-go/internal/monitor"
	"github.com/cbegin/cvseq-go/internal/patches"
	"github.com/cbegin/cvseq-go/internal/sequencer"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		configPath = flag.String("config", "", "path to an HCL sequencer config")
		patch      = flag.String("patch", "", "built-in patch name")
		seed       = flag.String("seed", "", "seed for the patch's random helpers")
		wave       = flag.String("wave", "triangle", "monitor tone waveform: sine|saw|square|triangle|noise")
		logPath    = flag.String("log", "", "write debug logs to this file")
	)
	flag.Parse()

	if err := run(*sampleRate, *configPath, *patch, *seed, *wave, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(sampleRate int, configPath, patch, seed, wave, logPath string) error {
	params := monitor.DefaultParams()
	var err error
	if params.ToneWave, err = monitor.ParseWaveform(wave); err != nil {
		return err
	}

	var w io.Writer = io.Discard
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	log, err := logger.New("debug", "json", w)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	file := &config.File{Sequencer: sequencer.Config{Looped: true}}
	if configPath != "" {
		if file, err = config.Load(configPath); err != nil {
			return err
		}
		if patch == "" {
			patch = file.Patch
		}
		if seed == "" {
			seed = file.Seed
		}
	}
	cfg := patches.Configure(patch, file.Sequencer, file.HasInterpolation)
	cfg.RunningByDefault = true
	fn, err := patches.Builder(patch, seed)
	if err != nil {
		return err
	}
	pl, err := cvseq.BuildPlayer(sampleRate, cfg, fn,
		cvseq.WithLogger(log),
		cvseq.WithStopAtEnd(false),
		cvseq.WithMonitorParams(params),
	)
	if err != nil {
		return err
	}
	events := pl.Watch()
	if err := pl.Play(); err != nil {
		return err
	}
	log.Info("monitor started", zap.String("patch", patch))

	m := newModel(pl, events, patch)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return pl.Stop()
}
