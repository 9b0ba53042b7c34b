package game

import (
	"testing"
	"time"

	"github.com/lasthand-os/lasthand-server/internal/card"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveFixture() Archive {
	strike, _ := card.ByID("atk-1")
	return Archive{
		MatchID:        "match-1",
		WinnerID:       "p1",
		WinnerPayout:   20,
		FinalStateHash: "cafe01",
		SavedAt:        time.Now(),
		Rounds: []Result{
			{
				Round:         1,
				Actions:       []Action{{PlayerID: "p1", Card: strike, TargetID: "p2"}},
				HealthChanges: map[string]int{"p1": 0, "p2": -20},
			},
			{
				Round:         2,
				HealthChanges: map[string]int{"p1": 0, "p2": -90},
				Eliminated:    []string{"p2"},
			},
		},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	store := NewArchiveStore(t.TempDir(), nil)
	want := archiveFixture()

	require.NoError(t, store.Save(want))
	got, err := store.Load("match-1")
	require.NoError(t, err)

	assert.Equal(t, want.MatchID, got.MatchID)
	assert.Equal(t, want.WinnerID, got.WinnerID)
	assert.Equal(t, want.FinalStateHash, got.FinalStateHash)
	require.Len(t, got.Rounds, 2)
	assert.Equal(t, want.Rounds[0].HealthChanges, got.Rounds[0].HealthChanges)
	assert.Equal(t, "STRIKE", got.Rounds[0].Actions[0].Card.Name)
}

func TestArchiveLoadMissing(t *testing.T) {
	store := NewArchiveStore(t.TempDir(), nil)
	_, err := store.Load("no-such-match")
	assert.Error(t, err)
}

func TestReplayCursor(t *testing.T) {
	store := NewArchiveStore(t.TempDir(), nil)
	require.NoError(t, store.Save(archiveFixture()))

	r, err := store.Replay("match-1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Size())

	first, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, 1, first.Round)

	second, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, 2, second.Round)

	_, ok = r.Next()
	assert.False(t, ok, "cursor must stop after the final round")

	back, ok := r.Previous()
	require.True(t, ok)
	assert.Equal(t, 1, back.Round)

	r.Rewind()
	first, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, 1, first.Round)
}

func TestHealthTimelineClampsAtZero(t *testing.T) {
	r := NewReplay("match-1", archiveFixture().Rounds)

	timeline := r.HealthTimeline(map[string]int{"p1": 100, "p2": 100}, 100)
	require.Len(t, timeline, 2)
	assert.Equal(t, 80, timeline[0]["p2"])
	assert.Equal(t, 0, timeline[1]["p2"], "health never goes negative")
	assert.Equal(t, 100, timeline[1]["p1"])
}
