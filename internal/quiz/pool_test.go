package quiz_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/quiz/quiztest"
	appErrors "github.com/samintell/songquiz/pkg/errors"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func drainIDs(p *quiz.Pool) []string {
	var ids []string
	for {
		song, ok := p.Draw()
		if !ok {
			return ids
		}
		ids = append(ids, song.ID)
	}
}

func TestBuildPoolKeepsEveryDistinctMasterSong(t *testing.T) {
	pool, err := quiz.BuildPool(quiztest.Catalog(12), quiz.PoolOptions{Rounds: 10, Rand: seeded(1)})
	require.NoError(t, err)
	require.Equal(t, 12, pool.Len())
	require.Equal(t, 12, pool.Remaining())

	ids := drainIDs(pool)
	require.Len(t, ids, 12)
	seen := make(map[string]bool)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	require.Equal(t, 0, pool.Remaining())

	_, ok := pool.Draw()
	require.False(t, ok)
}

func TestBuildPoolInsufficient(t *testing.T) {
	_, err := quiz.BuildPool(quiztest.Catalog(5), quiz.PoolOptions{Rounds: 10})
	require.ErrorIs(t, err, appErrors.ErrInsufficientPool)
}

func TestBuildPoolEmpty(t *testing.T) {
	_, err := quiz.BuildPool(quiztest.Catalog(5), quiz.PoolOptions{Rounds: 1, Categories: []string{"東方Project"}})
	require.ErrorIs(t, err, appErrors.ErrEmptyPool)

	_, err = quiz.BuildPool(nil, quiz.PoolOptions{Rounds: 1})
	require.ErrorIs(t, err, appErrors.ErrEmptyPool)
}

func TestBuildPoolFilters(t *testing.T) {
	catalog := []quiz.Song{
		{ID: "a", Tier: quiz.TierMaster, Category: "maimai", Version: "FESTiVAL", Level: 13},
		{ID: "a", Tier: quiz.TierRemaster, Category: "maimai", Version: "FESTiVAL", Level: 14},
		{ID: "b", Tier: quiz.TierRemaster, Category: "maimai", Version: "BUDDiES"},
		{ID: "c", Tier: "expert", Category: "maimai", Version: "FESTiVAL"},
		{ID: "d", Tier: quiz.TierMaster, Category: "東方Project", Version: "FESTiVAL"},
		{ID: "e", Tier: quiz.TierMaster, Category: "maimai", Version: "FESTiVAL"},
	}

	pool, err := quiz.BuildPool(catalog, quiz.PoolOptions{
		Rounds:     1,
		Categories: []string{"maimai"},
		Versions:   []string{"FESTiVAL", "BUDDiES"},
		Available:  func(s quiz.Song) bool { return s.ID != "e" },
		Rand:       seeded(7),
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, drainIDs(pool))

	pool, err = quiz.BuildPool(catalog, quiz.PoolOptions{Rounds: 1, Tier: "expert"})
	require.NoError(t, err)
	song, ok := pool.Draw()
	require.True(t, ok)
	require.Equal(t, "c", song.ID)
}

func TestBuildPoolKeepsFirstEntryPerID(t *testing.T) {
	catalog := []quiz.Song{
		{ID: "a", Tier: quiz.TierMaster, Level: 13},
		{ID: "a", Tier: quiz.TierRemaster, Level: 14.5},
	}
	pool, err := quiz.BuildPool(catalog, quiz.PoolOptions{Rounds: 1})
	require.NoError(t, err)

	song, ok := pool.Draw()
	require.True(t, ok)
	require.Equal(t, 13.0, song.Level)
	require.Equal(t, 1, pool.Len())
}

func TestBuildPoolShuffleIsSeeded(t *testing.T) {
	first, err := quiz.BuildPool(quiztest.Catalog(20), quiz.PoolOptions{Rounds: 5, Rand: seeded(42)})
	require.NoError(t, err)
	second, err := quiz.BuildPool(quiztest.Catalog(20), quiz.PoolOptions{Rounds: 5, Rand: seeded(42)})
	require.NoError(t, err)

	require.Equal(t, drainIDs(first), drainIDs(second))
}

func TestNilPoolIsExhausted(t *testing.T) {
	var p *quiz.Pool
	_, ok := p.Draw()
	require.False(t, ok)
	require.Zero(t, p.Len())
	require.Zero(t, p.Remaining())
}
