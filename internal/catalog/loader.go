package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/pkg/logger"
)

// Entry is one chart record of the converted catalog file.
type Entry struct {
	SongID     string  `json:"song_id"`
	Category   string  `json:"category"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Version    string  `json:"version"`
	Type       string  `json:"type"`
	Difficulty string  `json:"difficulty"`
	Level      float64 `json:"level"`
	Image      string  `json:"image"`
	Romaji     string  `json:"romaji"`
	English    string  `json:"english"`
}

// Song converts the entry. Media paths are filled in by a MediaResolver.
func (e Entry) Song() quiz.Song {
	return quiz.Song{
		ID:        e.SongID,
		Title:     e.Title,
		Romanized: e.Romaji,
		English:   e.English,
		Artist:    e.Artist,
		Category:  e.Category,
		Version:   e.Version,
		Tier:      strings.ToLower(e.Difficulty),
		Chart:     e.Type,
		Level:     e.Level,
		Media:     quiz.MediaRef{Image: e.Image},
	}
}

// Decode reads a JSON array of entries. Entries without a song id are skipped.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if strings.TrimSpace(e.SongID) == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// LoadFile reads and decodes the catalog file at path.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Filters lists the categories and versions present in the catalog.
type Filters struct {
	Categories []Option `json:"categories"`
	Versions   []Option `json:"versions"`
}

// Store holds the loaded catalog and swaps it atomically on reload.
type Store struct {
	path  string
	media *MediaResolver

	categories *Aliases
	versions   *Aliases

	mu       sync.RWMutex
	songs    []quiz.Song
	loadedAt time.Time
	timeNow  func() time.Time
	log      *zap.Logger
}

// NewStore creates a store for the catalog file at path. Call Reload before use.
func NewStore(path string, media *MediaResolver) *Store {
	return &Store{
		path:       path,
		media:      media,
		categories: NewAliases(Categories),
		versions:   NewAliases(Versions),
		timeNow:    time.Now,
		log:        logger.WithModule("catalog"),
	}
}

// NewStaticStore wraps an in-memory catalog.
func NewStaticStore(songs []quiz.Song, media *MediaResolver) *Store {
	s := NewStore("", media)
	s.replace(songs)
	return s
}

// Reload re-reads the catalog file. The previous catalog stays in place on error.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	entries, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	songs := make([]quiz.Song, 0, len(entries))
	for _, e := range entries {
		song := e.Song()
		if s.media != nil {
			song.Media = s.media.Ref(e.Image)
		}
		songs = append(songs, song)
	}
	s.replace(songs)
	s.log.Info("catalog loaded", zap.String("path", s.path), zap.Int("charts", len(songs)))
	return nil
}

func (s *Store) replace(songs []quiz.Song) {
	s.mu.Lock()
	s.songs = songs
	s.loadedAt = s.timeNow()
	s.mu.Unlock()
}

// Songs returns the current catalog. The slice must not be modified.
func (s *Store) Songs() []quiz.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.songs
}

// ResolveCategories maps user supplied categories to catalog names.
func (s *Store) ResolveCategories(inputs []string) ([]string, string, bool) {
	return s.categories.ResolveAll(inputs)
}

// ResolveVersions maps user supplied versions to catalog names.
func (s *Store) ResolveVersions(inputs []string) ([]string, string, bool) {
	return s.versions.ResolveAll(inputs)
}

// Filters counts distinct master songs per category and version.
func (s *Store) Filters() Filters {
	songs := s.Songs()

	seen := make(map[string]struct{}, len(songs))
	categories := make(map[string]int)
	versions := make(map[string]int)
	for _, song := range songs {
		if song.Tier != quiz.TierMaster && song.Tier != quiz.TierRemaster {
			continue
		}
		if _, dup := seen[song.ID]; dup {
			continue
		}
		seen[song.ID] = struct{}{}
		if song.Category != "" {
			categories[song.Category]++
		}
		if song.Version != "" {
			versions[song.Version]++
		}
	}
	return Filters{
		Categories: options(Categories, categories),
		Versions:   options(Versions, versions),
	}
}

// Stats summarises the loaded catalog.
type Stats struct {
	Charts   int       `json:"charts"`
	Songs    int       `json:"songs"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.songs))
	for _, song := range s.songs {
		ids[song.ID] = struct{}{}
	}
	return Stats{Charts: len(s.songs), Songs: len(ids), LoadedAt: s.loadedAt}
}
