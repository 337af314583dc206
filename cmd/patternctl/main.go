// Command patternctl is a one-shot CLI: compile a mini-notation pattern or
// an embedded-script expression, print the haps it queries over N cycles,
// and optionally play it through the audio backend. .env/Sentry init style
// is grounded on magda-api's main.go (godotenv.Load then sentry.Init guarded
// by an optional DSN).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	patterncycle "github.com/cbegin/patterncycle-go"
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/bridge"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

const sentryFlushTimeout = 2 * time.Second

type hapJSON struct {
	WholeBegin *float64 `json:"wholeBegin,omitempty"`
	WholeEnd   *float64 `json:"wholeEnd,omitempty"`
	PartBegin  float64  `json:"partBegin"`
	PartEnd    float64  `json:"partEnd"`
	HasOnset   bool     `json:"hasOnset"`
	Value      any      `json:"value"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: os.Getenv("PATTERNCTL_ENV")}); err != nil {
			log.Printf("failed to initialize sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	var (
		miniInline = flag.String("pattern", "", "mini-notation pattern source")
		scriptSrc  = flag.String("script", "", "embedded-script expression source")
		cycles     = flag.Int("cycles", 1, "cycles to query")
		play       = flag.Bool("play", false, "play the pattern through the audio backend")
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate, used with -play or -wav")
		wavPath    = flag.String("wav", "", "render the pattern offline and write it to this WAV path")
		engine     = flag.String("engine", "fm", "synth engine for -wav: fm|chiptune|nesapu|wavetable")
	)
	flag.Parse()

	pat, err := resolvePattern(*miniInline, *scriptSrc)
	if err != nil {
		captureAndExit(err)
	}

	haps := pat.Query(arc.Arc{Begin: rational.Zero, End: rational.FromInt(*cycles)})
	out := make([]hapJSON, 0, len(haps))
	for _, h := range haps {
		hj := hapJSON{PartBegin: h.Part.Begin.Float64(), PartEnd: h.Part.End.Float64(), HasOnset: h.HasOnset(), Value: h.Value}
		if h.Whole != nil {
			b, e := h.Whole.Begin.Float64(), h.Whole.End.Float64()
			hj.WholeBegin, hj.WholeEnd = &b, &e
		}
		out = append(out, hj)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		captureAndExit(err)
	}

	if *play {
		pl, err := patterncycle.NewPlayer(*sampleRate)
		if err != nil {
			captureAndExit(err)
		}
		opts := bridge.DefaultOptions()
		opts.Cycles = *cycles
		if err := pl.PlayPattern(pat, opts); err != nil {
			captureAndExit(err)
		}
		pl.Wait()
	}

	if *wavPath != "" {
		if err := renderWAV(pat, *cycles, *sampleRate, *engine, *wavPath); err != nil {
			captureAndExit(err)
		}
	}
}

// renderWAV bakes pat through bridge.ScoreFromPattern into an mml.Score and
// renders it offline the same way the teacher's own RenderSamples* family
// renders parsed MML, so a mini-notation/script pattern gets the same WAV
// export path an MML file already had.
func renderWAV(pat patterncycle.Pattern, cycles, sampleRate int, engine, path string) error {
	opts := bridge.DefaultOptions()
	opts.Cycles = cycles
	score := bridge.ScoreFromPattern(pat, opts)

	// One cycle is one mml whole note (4 beats); seconds-per-cycle follows
	// from the score's own tempo rather than a hardcoded duration.
	seconds := float64(cycles) * 4 * 60 / score.InitialBPM

	var samples []float32
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "fm":
		samples = patterncycle.RenderSamples(score, sampleRate, seconds)
	case "chiptune":
		samples = patterncycle.RenderSamplesChiptune(score, sampleRate, seconds)
	case "nesapu":
		samples = patterncycle.RenderSamplesNESAPU(score, sampleRate, seconds)
	case "wavetable":
		samples = patterncycle.RenderSamplesWavetable(score, sampleRate, seconds)
	default:
		return fmt.Errorf("patternctl: invalid -engine %q (expected fm|chiptune|nesapu|wavetable)", engine)
	}

	wav := patterncycle.EncodeWAVFloat32LE(samples, sampleRate, 2)
	return os.WriteFile(path, wav, 0o644)
}

func resolvePattern(miniInline, scriptSrc string) (patterncycle.Pattern, error) {
	switch {
	case scriptSrc != "":
		return patterncycle.CompileScript(scriptSrc)
	case miniInline != "":
		return patterncycle.CompilePattern(miniInline)
	default:
		return patterncycle.Pattern{}, fmt.Errorf("patternctl: one of -pattern or -script is required")
	}
}

func captureAndExit(err error) {
	sentry.CaptureException(err)
	log.Fatal(err)
}
