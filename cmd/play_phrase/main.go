package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cbegin/cvseq-go"
	"github.com/cbegin/cvseq-go/internal/config"
	"github.com/cbegin/cvseq-go/internal/logger"
	"github.com/cbegin/cvseq-go/internal/monitor"
	"github.com/cbegin/cvseq-go/internal/patches"
	"github.com/cbegin/cvseq-go/internal/sequencer"
)

type options struct {
	sampleRate int
	configPath string
	patch      string
	seed       string
	bpm        float64
	loop       bool
	loops      int
	shift      float64
	wavPath    string
	midiPath   string
	seconds    float64
	logLevel   string
	logFormat  string
	wave       string
	list       bool
}

func main() {
	var o options
	flag.IntVar(&o.sampleRate, "sample-rate", 48000, "output sample rate")
	flag.StringVar(&o.configPath, "config", "", "path to an HCL sequencer config")
	flag.StringVar(&o.patch, "patch", "", "built-in patch name (see -list)")
	flag.StringVar(&o.seed, "seed", "", "seed for the patch's random helpers")
	flag.Float64Var(&o.bpm, "bpm", 0, "tempo override")
	flag.BoolVar(&o.loop, "loop", true, "loop the phrase; use with -loops to count then stop")
	flag.IntVar(&o.loops, "loops", 4, "when looping, stop after N loops (0 = loop forever)")
	flag.Float64Var(&o.shift, "shift", 0, "channel shift scalar in [0,1]")
	flag.StringVar(&o.wavPath, "wav", "", "render offline to this WAV file instead of playing")
	flag.StringVar(&o.midiPath, "midi", "", "render offline to this MIDI file instead of playing")
	flag.Float64Var(&o.seconds, "seconds", 8, "offline render length")
	flag.StringVar(&o.logLevel, "log-level", "info", "debug|info|warn|error")
	flag.StringVar(&o.logFormat, "log-format", "text", "text|json")
	flag.StringVar(&o.wave, "wave", "triangle", "monitor tone waveform: sine|saw|square|triangle|noise")
	flag.BoolVar(&o.list, "list", false, "list built-in patches and exit")
	flag.Parse()

	if o.list {
		for _, name := range patches.Names() {
			p, _ := patches.Lookup(name)
			fmt.Printf("%-20s %s\n", name, p.Description)
		}
		return
	}

	log, err := logger.New(o.logLevel, o.logFormat, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if err := run(o, setFlags(), log); err != nil {
		log.Error("play_phrase failed", zap.Error(err))
		os.Exit(1)
	}
}

func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// resolve merges the config file with flags; flags given on the command
// line win.
func resolve(o options, set map[string]bool) (sequencer.Config, sequencer.BuilderFunc, error) {
	file := &config.File{Sequencer: sequencer.Config{Looped: o.loop}}
	if strings.TrimSpace(o.configPath) != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return sequencer.Config{}, nil, err
		}
		file = loaded
		if set["loop"] {
			file.Sequencer.Looped = o.loop
		}
	}
	cfg := file.Sequencer
	cfg.RunningByDefault = true
	if o.bpm > 0 {
		cfg.BPM = o.bpm
	}
	patch, seed := file.Patch, file.Seed
	if set["patch"] || patch == "" {
		patch = o.patch
	}
	if set["seed"] {
		seed = o.seed
	}
	fn, err := patches.Builder(patch, seed)
	if err != nil {
		return sequencer.Config{}, nil, errors.Wrap(err, "try -list")
	}
	return patches.Configure(patch, cfg, file.HasInterpolation), fn, nil
}

func run(o options, set map[string]bool, log *zap.Logger) error {
	cfg, fn, err := resolve(o, set)
	if err != nil {
		return err
	}
	if o.wavPath != "" || o.midiPath != "" {
		return render(o, cfg, fn, log)
	}

	params := monitor.DefaultParams()
	if params.ToneWave, err = monitor.ParseWaveform(o.wave); err != nil {
		return err
	}
	pl, err := cvseq.BuildPlayer(o.sampleRate, cfg, fn, cvseq.WithLogger(log), cvseq.WithMonitorParams(params))
	if err != nil {
		return err
	}
	pl.SetShift(o.shift)
	ch := pl.Watch()
	if err := pl.Play(); err != nil {
		return err
	}
	loopCount := 0
	for event := range ch {
		switch event.Kind {
		case cvseq.EventPlaybackEnded:
			log.Info("playback completed")
			return nil
		case cvseq.EventLoopCompleted:
			loopCount++
			log.Info("loop completed", zap.Int("loop", loopCount), zap.Int64("position", pl.PlaybackPosition()))
			if o.loops > 0 && loopCount >= o.loops {
				return pl.Stop()
			}
		}
	}
	return nil
}

func render(o options, cfg sequencer.Config, fn sequencer.BuilderFunc, log *zap.Logger) error {
	seq, err := sequencer.Build(cfg, fn)
	if err != nil {
		return err
	}
	rec, err := cvseq.RenderWithHost(seq.Phrase(), cfg, o.sampleRate, o.seconds, func(int) sequencer.HostState {
		return sequencer.HostState{Shift: o.shift}
	})
	if err != nil {
		return err
	}
	log.Info("rendered",
		zap.Int("frames", rec.Frames()),
		zap.Float64("tick_rate", rec.TickRate),
		zap.Int("events", len(rec.Events)),
	)
	if o.wavPath != "" {
		if err := writeFile(o.wavPath, func(f *os.File) error { return rec.WriteWAV(f) }); err != nil {
			return err
		}
		log.Info("wrote wav", zap.String("path", o.wavPath))
	}
	if o.midiPath != "" {
		if err := writeFile(o.midiPath, func(f *os.File) error { return rec.WriteMIDI(f) }); err != nil {
			return err
		}
		log.Info("wrote midi", zap.String("path", o.midiPath))
	}
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
