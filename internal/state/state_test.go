package state

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.yaml")

	s := NewStore(path, discardLogger())
	w := s.World()
	w.Visit("intro")
	w.Visit("logs")
	w.NextTurn()
	w.Stats[StatAwareness] = 42
	w.MergeFlags(map[string]any{"kept_log_page": true, "name": "operator"})
	w.AppendHistory(Entry{Speaker: "player", Text: "hello?"})
	w.AppendHistory(Entry{Speaker: "narrator", Text: "hello."})

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := NewStore(path, discardLogger())
	w2 := s2.World()

	if w2.CurrentScene != "logs" {
		t.Errorf("CurrentScene = %q, want %q", w2.CurrentScene, "logs")
	}
	if w2.SceneCount != 2 || w2.TurnCount != 1 || w2.Loop != 1 {
		t.Errorf("counters = (%d,%d,%d), want (2,1,1)", w2.SceneCount, w2.TurnCount, w2.Loop)
	}
	if len(w2.Visited) != 2 || w2.Visited[0] != "intro" {
		t.Errorf("Visited = %v", w2.Visited)
	}
	if w2.Stats[StatAwareness] != 42 {
		t.Errorf("awareness = %d, want 42", w2.Stats[StatAwareness])
	}
	if w2.Flags["kept_log_page"] != true || w2.Flags["name"] != "operator" {
		t.Errorf("Flags = %v", w2.Flags)
	}
	if len(w2.History) != 2 || w2.History[1].Text != "hello." {
		t.Errorf("History = %v", w2.History)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.yaml")

	// An old save knowing only about the loop counter: every other field
	// must keep its default.
	if err := os.WriteFile(path, []byte("loop: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewStore(path, discardLogger()).World()
	if w.Loop != 3 {
		t.Errorf("Loop = %d, want 3", w.Loop)
	}
	def := Default()
	for _, k := range StatKeys {
		if w.Stats[k] != def.Stats[k] {
			t.Errorf("stat %s = %d, want default %d", k, w.Stats[k], def.Stats[k])
		}
	}
}

func TestLoadCorruptFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.yaml")
	if err := os.WriteFile(path, []byte("{::: not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewStore(path, discardLogger()).World()
	def := Default()
	if w.Loop != def.Loop || w.Stats[StatStability] != def.Stats[StatStability] {
		t.Errorf("corrupt save did not reset to defaults: %+v", w)
	}
}

func TestLoadClampsOutOfRangeStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.yaml")
	data := "stats:\n  stability: 300\n  noise: -40\n  trust: 50\n  awareness: 10\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewStore(path, discardLogger()).World()
	if w.Stats[StatStability] != 100 {
		t.Errorf("stability = %d, want 100", w.Stats[StatStability])
	}
	if w.Stats[StatNoise] != 0 {
		t.Errorf("noise = %d, want 0", w.Stats[StatNoise])
	}
}

func TestHistoryEviction(t *testing.T) {
	w := Default()
	for i := 0; i < HistoryLimit+10; i++ {
		w.AppendHistory(Entry{Speaker: "player", Text: fmt.Sprintf("line %d", i)})
	}
	if len(w.History) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(w.History), HistoryLimit)
	}
	if w.History[0].Text != "line 10" {
		t.Errorf("oldest entry = %q, want %q", w.History[0].Text, "line 10")
	}
	if last := w.History[len(w.History)-1].Text; last != fmt.Sprintf("line %d", HistoryLimit+9) {
		t.Errorf("newest entry = %q", last)
	}
}

func TestVisitDeduplicates(t *testing.T) {
	w := Default()
	if !w.Visit("intro") {
		t.Error("first visit should be new")
	}
	if w.Visit("intro") {
		t.Error("second visit should not be new")
	}
	if len(w.Visited) != 1 {
		t.Errorf("Visited = %v, want one entry", w.Visited)
	}
	if w.SceneCount != 2 {
		t.Errorf("SceneCount = %d, want 2 (counter is monotonic even on revisits)", w.SceneCount)
	}
}

func TestRecentHistory(t *testing.T) {
	w := Default()
	for i := 0; i < 5; i++ {
		w.AppendHistory(Entry{Text: fmt.Sprintf("%d", i)})
	}
	got := w.RecentHistory(3)
	if len(got) != 3 || got[0].Text != "2" {
		t.Errorf("RecentHistory(3) = %v", got)
	}
	if got := w.RecentHistory(10); len(got) != 5 {
		t.Errorf("RecentHistory(10) length = %d, want 5", len(got))
	}
}
