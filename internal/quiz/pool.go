package quiz

import (
	"math/rand/v2"
	"strings"

	appErrors "github.com/samintell/songquiz/pkg/errors"
)

// PoolOptions narrows the catalog for one session.
type PoolOptions struct {
	// Tier defaults to TierMaster.
	Tier       string
	Categories []string
	Versions   []string
	// Available reports whether the media needed to present a song exists. Nil admits all.
	Available func(Song) bool
	Rounds    int
	Rand      *rand.Rand
}

// Pool is the shuffled, duplicate free sequence of songs a session draws from. It is
// owned by a single session and is not safe for concurrent use.
type Pool struct {
	songs []Song
	next  int
}

// BuildPool filters catalog by tier, category, version and media availability, keeps
// the first entry per song id and shuffles once. It fails instead of truncating when
// fewer than opts.Rounds songs survive.
func BuildPool(catalog []Song, opts PoolOptions) (*Pool, error) {
	tier := strings.ToLower(strings.TrimSpace(opts.Tier))
	if tier == "" {
		tier = TierMaster
	}

	seen := make(map[string]struct{}, len(catalog))
	songs := make([]Song, 0, len(catalog))
	for _, song := range catalog {
		if !tierMatches(song.Tier, tier) {
			continue
		}
		if !anyOf(song.Category, opts.Categories) || !anyOf(song.Version, opts.Versions) {
			continue
		}
		if opts.Available != nil && !opts.Available(song) {
			continue
		}
		if _, dup := seen[song.ID]; dup {
			continue
		}
		seen[song.ID] = struct{}{}
		songs = append(songs, song)
	}

	if len(songs) == 0 {
		return nil, appErrors.ErrEmptyPool
	}
	if len(songs) < opts.Rounds {
		return nil, appErrors.ErrInsufficientPool.WithMessage(
			"Only %d distinct songs match the filters, %d rounds requested", len(songs), opts.Rounds)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(songs), func(i, j int) { songs[i], songs[j] = songs[j], songs[i] })

	return &Pool{songs: songs}, nil
}

// Draw removes and returns the next song. ok is false once the pool is exhausted.
func (p *Pool) Draw() (Song, bool) {
	if p == nil || p.next >= len(p.songs) {
		return Song{}, false
	}
	song := p.songs[p.next]
	p.next++
	return song, true
}

// Len is the number of songs the pool was built with.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.songs)
}

// Remaining is the number of songs not yet drawn.
func (p *Pool) Remaining() int {
	if p == nil {
		return 0
	}
	return len(p.songs) - p.next
}

func tierMatches(songTier, want string) bool {
	songTier = strings.ToLower(songTier)
	if songTier == want {
		return true
	}
	return want == TierMaster && songTier == TierRemaster
}

func anyOf(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
