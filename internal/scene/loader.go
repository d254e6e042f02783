package scene

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed data/scenes.yaml
var defaultScenesYAML []byte

// Collection is the set of authored scenes, read-only after load.
type Collection struct {
	scenes map[string]*Scene
	order  []string
}

// Get looks a scene up by id.
func (c *Collection) Get(id string) (*Scene, bool) {
	s, ok := c.scenes[id]
	return s, ok
}

// First returns the first scene of the authored document, the entry point
// for a fresh game.
func (c *Collection) First() *Scene {
	if len(c.order) == 0 {
		return nil
	}
	return c.scenes[c.order[0]]
}

// Len reports the number of authored scenes.
func (c *Collection) Len() int { return len(c.order) }

// All iterates scenes in authored order.
func (c *Collection) All() []*Scene {
	out := make([]*Scene, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.scenes[id])
	}
	return out
}

type sceneDocument struct {
	Scenes []*Scene `yaml:"scenes"`
}

// Load fetches the scene document from source, an http(s) URL or a local
// path, or the embedded default document when source is empty. Any failure
// substitutes the single fallback scene so the engine never starts with
// zero scenes.
func Load(ctx context.Context, source string, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := fetch(ctx, source)
	if err != nil {
		logger.Warn("scene source unavailable, using fallback scene", "source", source, "err", err)
		return Fallback()
	}
	col, err := Parse(data)
	if err != nil {
		logger.Warn("scene document malformed, using fallback scene", "source", source, "err", err)
		return Fallback()
	}
	logger.Info("scenes loaded", "source", source, "count", col.Len())
	return col
}

func fetch(ctx context.Context, source string) ([]byte, error) {
	if source == "" {
		return defaultScenesYAML, nil
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch scenes: status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

// Parse decodes a scene document and indexes it by id.
func Parse(data []byte) (*Collection, error) {
	var doc sceneDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode scenes: %w", err)
	}
	if len(doc.Scenes) == 0 {
		return nil, fmt.Errorf("scene document contains no scenes")
	}
	col := &Collection{scenes: make(map[string]*Scene, len(doc.Scenes))}
	for _, s := range doc.Scenes {
		if s.ID == "" {
			return nil, fmt.Errorf("scene with empty id (title %q)", s.Title)
		}
		if _, dup := col.scenes[s.ID]; dup {
			return nil, fmt.Errorf("duplicate scene id %q", s.ID)
		}
		col.scenes[s.ID] = s
		col.order = append(col.order, s.ID)
	}
	return col, nil
}

// Fallback builds the minimal one-scene collection used when the scene
// source is unreachable or malformed.
func Fallback() *Collection {
	s := &Scene{
		ID:    "fallback",
		Title: "Static",
		Text: "The station archive refuses to open. Only this room exists tonight: " +
			"a desk, a dead monitor, and the hum of something waiting behind the wall.",
		Choices: []Choice{
			{Label: `"Is anyone there?"`, Type: "dialogue"},
			{Label: "Wait for the night to end", Type: "event", Effects: map[string]int{"noise": 5}},
		},
	}
	return &Collection{scenes: map[string]*Scene{s.ID: s}, order: []string{s.ID}}
}
