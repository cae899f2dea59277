package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samintell/songquiz/internal/quiz"
)

// MediaResolver maps catalog image names to the cover art and audio files on disk.
// Audio clips share the image's base name with an .mp3 extension.
type MediaResolver struct {
	ImagesDir string
	AudioDir  string
	stat      func(string) (os.FileInfo, error)
}

// NewMediaResolver returns a resolver rooted at the given directories.
func NewMediaResolver(imagesDir, audioDir string) *MediaResolver {
	return &MediaResolver{ImagesDir: imagesDir, AudioDir: audioDir, stat: os.Stat}
}

// Ref builds the media reference for an image name.
func (m *MediaResolver) Ref(image string) quiz.MediaRef {
	image = filepath.Base(strings.TrimSpace(image))
	if image == "" || image == "." || image == string(filepath.Separator) {
		return quiz.MediaRef{}
	}
	stem := strings.TrimSuffix(image, filepath.Ext(image))
	return quiz.MediaRef{
		Image: filepath.Join(m.ImagesDir, image),
		Audio: filepath.Join(m.AudioDir, stem+".mp3"),
	}
}

// Exists reports whether the media file for mode is present for song.
func (m *MediaResolver) Exists(mode quiz.Mode, song quiz.Song) bool {
	return m.Present(mode, song.Media)
}

// Present reports whether the file ref points at for mode is on disk.
func (m *MediaResolver) Present(mode quiz.Mode, ref quiz.MediaRef) bool {
	if mode == quiz.ModeAudio {
		return m.exists(ref.Audio)
	}
	return m.exists(ref.Image)
}

func (m *MediaResolver) exists(path string) bool {
	if path == "" {
		return false
	}
	stat := m.stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	return err == nil && !info.IsDir()
}
