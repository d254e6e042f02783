package scene

import (
	"testing"

	"github.com/solhart/nightloop/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDoc = `
scenes:
  - id: intro
    title: Intro
    text: "Night {{.Loop}} begins."
  - id: hall
    title: Hall
    text: A hall.
    random: true
  - id: attic
    title: Attic
    text: An attic.
    random: true
    conditions:
      stats:
        awareness: {gte: 50}
  - id: vault
    title: Vault
    text: A vault.
`

func testCollection(t *testing.T) *Collection {
	t.Helper()
	col, err := Parse([]byte(testDoc))
	require.NoError(t, err)
	return col
}

func TestResolveDirectTarget(t *testing.T) {
	r := NewResolver(testCollection(t))
	w := state.Default()

	sc, err := r.Resolve("vault", w, false)
	require.NoError(t, err)
	assert.Equal(t, "vault", sc.ID)
}

func TestResolveUnknownTarget(t *testing.T) {
	r := NewResolver(testCollection(t))
	_, err := r.Resolve("basement", state.Default(), true)
	assert.ErrorIs(t, err, ErrNoScene)
}

func TestResolveRandomRequiresExplicit(t *testing.T) {
	r := NewResolver(testCollection(t))
	_, err := r.Resolve("", state.Default(), false)
	assert.ErrorIs(t, err, ErrNoScene)
}

func TestResolveRandomPool(t *testing.T) {
	r := NewResolver(testCollection(t))
	w := state.Default()

	// awareness below the attic gate: only hall is eligible.
	sc, err := r.Resolve("", w, true)
	require.NoError(t, err)
	assert.Equal(t, "hall", sc.ID)
}

func TestResolveRandomHonorsConditions(t *testing.T) {
	r := NewResolver(testCollection(t))
	w := state.Default()
	w.Stats[state.StatAwareness] = 60
	w.Visit("hall")

	sc, err := r.Resolve("", w, true)
	require.NoError(t, err)
	assert.Equal(t, "attic", sc.ID)
}

func TestResolveNeverRevisitsWithinLoop(t *testing.T) {
	r := NewResolver(testCollection(t))
	w := state.Default()
	w.Stats[state.StatAwareness] = 60

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		sc, err := r.Resolve("", w, true)
		require.NoError(t, err)
		assert.False(t, seen[sc.ID], "scene %s selected twice in one loop", sc.ID)
		seen[sc.ID] = true
		w.Visit(sc.ID)
	}

	// Pool exhausted: the caller is expected to end the night.
	_, err := r.Resolve("", w, true)
	assert.ErrorIs(t, err, ErrNoScene)
}

func TestResolveRandomAgainAfterLoopAdvance(t *testing.T) {
	r := NewResolver(testCollection(t))
	w := state.Default()
	w.Visit("hall")

	_, err := r.Resolve("", w, true)
	assert.ErrorIs(t, err, ErrNoScene)

	// A loop advance clears the visited set; hall is eligible again.
	w.Visited = nil
	sc, err := r.Resolve("", w, true)
	require.NoError(t, err)
	assert.Equal(t, "hall", sc.ID)
}

func TestResolveUniformPick(t *testing.T) {
	col := testCollection(t)
	r := NewResolver(col)
	w := state.Default()
	w.Stats[state.StatAwareness] = 60

	r.pick = func(n int) int {
		require.Equal(t, 2, n, "both hall and attic should be eligible")
		return 1
	}
	sc, err := r.Resolve("", w, true)
	require.NoError(t, err)
	assert.Equal(t, "attic", sc.ID)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	doc := `
scenes:
  - id: twin
    title: One
    text: a
  - id: twin
    title: Two
    text: b
`
	_, err := Parse([]byte(doc))
	assert.ErrorContains(t, err, "duplicate scene id")
}

func TestFallbackCollection(t *testing.T) {
	col := Fallback()
	require.Equal(t, 1, col.Len())
	sc := col.First()
	require.NotNil(t, sc)
	assert.NotEmpty(t, sc.Text)
	assert.NotEmpty(t, sc.Choices)
}

func TestEmbeddedDefaultDocumentParses(t *testing.T) {
	col, err := Parse(defaultScenesYAML)
	require.NoError(t, err)
	assert.Greater(t, col.Len(), 5)
	_, ok := col.Get("intro")
	assert.True(t, ok)
}

func TestRenderTextInterpolation(t *testing.T) {
	col := testCollection(t)
	w := state.Default()
	w.Loop = 4

	sc, _ := col.Get("intro")
	assert.Equal(t, "Night 4 begins.", sc.RenderText(w))

	// Plain text passes through untouched.
	vault, _ := col.Get("vault")
	assert.Equal(t, "A vault.", vault.RenderText(w))
}

func TestClassifyKind(t *testing.T) {
	cases := []struct {
		tag   string
		label string
		want  Kind
	}{
		{"dialogue", "Run away", KindDialogue}, // explicit tag wins
		{"navigate", `"Hello?"`, KindNavigate},
		{"ACTION", "Pull the lever", KindAction},
		{"", `"Is anyone there?"`, KindDialogue}, // quoted label heuristic
		{"", "Check the logs", KindEvent},
		{"", "She said “wait”", KindDialogue},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyKind(tc.tag, tc.label), "tag=%q label=%q", tc.tag, tc.label)
	}
}

func TestIsDynamic(t *testing.T) {
	assert.True(t, IsDynamic("loc:forest_edge"))
	assert.False(t, IsDynamic("intro"))
}
