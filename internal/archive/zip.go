// Package archive extracts audio entries from uploaded ZIP archives for bulk
// submission.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
	".webm": {},
}

// Entry is one audio file found inside an archive.
type Entry struct {
	Name string // base filename
	Path string // full path inside the archive
	file *zip.File
}

// Open returns a reader over the entry's content. The caller closes it.
func (e Entry) Open() (io.ReadCloser, error) {
	return e.file.Open()
}

// IsAudioFilename reports whether the filename carries an accepted audio
// extension.
func IsAudioFilename(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ExtractAudio lists the audio entries in a ZIP archive, skipping
// directories, macOS resource-fork metadata, dotfiles and empty entries.
func ExtractAudio(r io.ReaderAt, size int64) ([]Entry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var entries []Entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || f.UncompressedSize64 == 0 {
			continue
		}
		name := path.Base(f.Name)
		if strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(name, ".") {
			continue
		}
		if !IsAudioFilename(name) {
			continue
		}
		entries = append(entries, Entry{Name: name, Path: f.Name, file: f})
	}
	return entries, nil
}
