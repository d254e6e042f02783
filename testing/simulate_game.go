// Headless playthrough harness: serves a canned narrator endpoint and
// plays a few nights without the TUI, printing the transcript. Useful for
// eyeballing engine behavior end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/solhart/nightloop/internal/config"
	"github.com/solhart/nightloop/internal/engine"
)

const maxSteps = 30

func main() {
	endpoint, stop := startFakeNarrator()
	defer stop()

	dir, err := os.MkdirTemp("", "nightloop-sim-*")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := &config.Config{
		NarratorURL: endpoint,
		Model:       "canned",
		MaxTokens:   400,
		SavePath:    filepath.Join(dir, "save.yaml"),
		Cooldown:    10 * time.Millisecond,
		StallWindow: 5 * time.Second,
		HardTimeout: 10 * time.Second,
		Grace:       50 * time.Millisecond,
		TurnBudget:  12,
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng := engine.New(context.Background(), cfg, logger)
	defer eng.Close()
	eng.Start()

	choices := 0
	for step := 0; step < maxSteps; step++ {
		drained := drain(eng, &choices)
		if !drained {
			break
		}
		if eng.Ended() != nil {
			fmt.Println("--- next loop ---")
			eng.NextLoop()
			continue
		}
		if choices > 0 {
			pick := rand.IntN(choices)
			fmt.Printf("[pick %d]\n", pick+1)
			eng.Choose(pick)
			time.Sleep(cfg.Cooldown * 2)
		} else {
			eng.Say("What happens now?")
			time.Sleep(cfg.Cooldown * 2)
		}
	}

	w := eng.World()
	fmt.Printf("\nfinal: loop=%d scenes=%d turns=%d stats=%v\n", w.Loop, w.SceneCount, w.TurnCount, w.Stats)
}

// drain prints events until the engine goes quiet, recording how many
// choices are on offer.
func drain(eng *engine.Engine, choices *int) bool {
	for {
		select {
		case ev := <-eng.Events():
			switch ev := ev.(type) {
			case engine.SceneEvent:
				fmt.Printf("\n== %s ==\n%s\n", ev.Location, ev.Text)
				*choices = 0
				if ev.Scene != nil {
					*choices = len(ev.Scene.Choices)
					for i, c := range ev.Scene.Choices {
						fmt.Printf("  %d. %s\n", i+1, c.Label)
					}
				}
			case engine.SystemEvent:
				fmt.Printf("(system) %s\n", ev.Text)
			case engine.ShockEvent:
				fmt.Println("(shock)")
			case engine.EndingEvent:
				fmt.Printf("\nENDING: %s — %s\n", ev.Ending.Title, ev.Ending.Description)
			case engine.TurnDoneEvent:
				fmt.Println("(turn settled)")
			}
		case <-time.After(300 * time.Millisecond):
			return true
		}
	}
}

// startFakeNarrator serves a fixed SSE response in the proxy dialect.
func startFakeNarrator() (string, func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		deltas := []string{
			"<think>decide the ruling</think>",
			"The frequency answers you in your own voice, ",
			"a half-second late.\n\n",
			"```json\n{\"effects\": {\"awareness\": 5, \"noise\": 5}, \"next\": null, \"ending\": null}\n```",
		}
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
			flusher.Flush()
			time.Sleep(20 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	return fmt.Sprintf("http://%s/v1/chat/completions", ln.Addr()), func() { srv.Close() }
}
