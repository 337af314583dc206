package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cbegin/patterncycle-go"
	"github.com/cbegin/patterncycle-go/internal/bridge"
)

const defaultMML = "e g b d f a" // spaces prevent "b" from being parsed as flat accidental

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		engineName = flag.String("engine", "fm", "synth engine: fm|chiptune|nesapu|wavetable")
		loop       = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 3, "when -loop, stop after N loops (0 = loop forever)")
		mmlPath    = flag.String("file", "", "path to an MML file")
		mmlInline  = flag.String("mml", "", "inline MML string")
		miniInline = flag.String("pattern", "", "inline mini-notation pattern string")
		scriptFlag = flag.String("script", "", "inline embedded-script expression")
		cycles     = flag.Int("cycles", 4, "cycles to render when using -pattern/-script")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		octave     = flag.Int("octave", 0, "master octave shift (-4..+4)")
	)
	flag.Parse()

	mode, err := parseSynthMode(*engineName)
	if err != nil {
		log.Fatal(err)
	}
	pl, err := patterncycle.NewPlayer(*sampleRate, patterncycle.WithSynthMode(mode), patterncycle.WithLoopPlayback(*loop))
	if err != nil {
		log.Fatal(err)
	}
	pl.SetMasterVolume(*volume)
	pl.SetTranspose(*octave)
	ch := pl.Watch()

	switch {
	case strings.TrimSpace(*miniInline) != "":
		pat, err := patterncycle.CompilePattern(*miniInline)
		if err != nil {
			log.Fatal(err)
		}
		opts := bridgeOptions(*cycles)
		if err := pl.PlayPattern(pat, opts); err != nil {
			log.Fatal(err)
		}
	case strings.TrimSpace(*scriptFlag) != "":
		pat, err := patterncycle.CompileScript(*scriptFlag)
		if err != nil {
			log.Fatal(err)
		}
		opts := bridgeOptions(*cycles)
		if err := pl.PlayPattern(pat, opts); err != nil {
			log.Fatal(err)
		}
	default:
		mmlText, err := resolveMMLInput(*mmlPath, *mmlInline)
		if err != nil {
			log.Fatal(err)
		}
		if err := pl.PlayMML(mmlText); err != nil {
			log.Fatal(err)
		}
	}
	loopCount := 0
	for event := range ch {
		switch event.Kind {
		case patterncycle.EventPlaybackEnded:
			fmt.Println("playback completed")
			goto done
		case patterncycle.EventLoopCompleted:
			loopCount++
			fmt.Printf("loop %d completed\n", loopCount)
			if *loop && *loops > 0 && loopCount >= *loops {
				pl.Stop()
			}
		case patterncycle.EventTrigger:
			fmt.Printf("trigger %d (on=%d off=%d)\n", event.TriggerID, event.NoteOnType, event.NoteOffType)
		}
	}
done:
	pl.Wait()
}

func resolveMMLInput(path string, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultMML, nil
}

func bridgeOptions(cycles int) bridge.Options {
	opts := bridge.DefaultOptions()
	opts.Cycles = cycles
	return opts
}

func parseSynthMode(name string) (patterncycle.SynthMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fm":
		return patterncycle.SynthModeFM, nil
	case "chiptune":
		return patterncycle.SynthModeChiptune, nil
	case "nesapu":
		return patterncycle.SynthModeNESAPU, nil
	case "wavetable":
		return patterncycle.SynthModeWavetable, nil
	default:
		return "", fmt.Errorf("invalid -engine %q (expected fm|chiptune|nesapu|wavetable)", name)
	}
}
