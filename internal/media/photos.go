// Package media turns photo references into Telegram input files and albums.
//
// A reference is one of: an http(s) URL, a Telegram file id, an absolute file
// path, or a path relative to the media directory.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-telegram/bot/models"
)

// MaxGroupSize is the largest album Telegram accepts.
const MaxGroupSize = 10

// ErrPhotoNotFound is returned for path references that do not exist.
var ErrPhotoNotFound = errors.New("photo not found")

// Kind classifies a photo reference.
type Kind int

// Reference kinds.
const (
	KindFileID Kind = iota
	KindURL
	KindLocal
)

// Resolved is a classified photo reference.
type Resolved struct {
	Ref  string
	Kind Kind
	// Path is the file on disk for KindLocal.
	Path string
}

// Resolve classifies ref. Path-like references must point at a regular file.
// A bare name without separators or extension is a file under mediaDir when
// one exists there and a Telegram file id otherwise.
func Resolve(ref, mediaDir string) (Resolved, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Resolved{}, errors.New("empty photo reference")
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Resolved{Ref: ref, Kind: KindURL}, nil
	}

	if !looksLikePath(ref) {
		if path := filepath.Join(mediaDir, ref); mediaDir != "" && isRegularFile(path) {
			return Resolved{Ref: ref, Kind: KindLocal, Path: path}, nil
		}
		return Resolved{Ref: ref, Kind: KindFileID}, nil
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(mediaDir, path)
	}

	if !isRegularFile(path) {
		return Resolved{}, fmt.Errorf("%s: %w", ref, ErrPhotoNotFound)
	}

	return Resolved{Ref: ref, Kind: KindLocal, Path: path}, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Available splits refs into those that resolve and those whose files are
// missing, keeping order.
func Available(refs []string, mediaDir string) (found, missing []string) {
	for _, ref := range refs {
		if _, err := Resolve(ref, mediaDir); err != nil {
			missing = append(missing, ref)
			continue
		}
		found = append(found, ref)
	}
	return found, missing
}

// looksLikePath reports whether ref has path syntax. Telegram file ids are
// URL-safe base64 and never contain separators or dots.
func looksLikePath(ref string) bool {
	return strings.ContainsAny(ref, `/\.`)
}

// OpenInputFile resolves ref for SendPhoto. The returned closer must be
// closed after the request is sent.
func OpenInputFile(ref, mediaDir string) (models.InputFile, io.Closer, error) {
	r, err := Resolve(ref, mediaDir)
	if err != nil {
		return nil, nil, err
	}

	if r.Kind != KindLocal {
		return &models.InputFileString{Data: r.Ref}, nopCloser{}, nil
	}

	f, err := os.Open(r.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open photo: %w", err)
	}

	return &models.InputFileUpload{Filename: filepath.Base(r.Path), Data: f}, f, nil
}

// BuildPhotoGroup converts refs into album items. caption, when set, is put
// on the first item, which is where Telegram shows an album caption.
func BuildPhotoGroup(refs []string, mediaDir, caption string, parseMode models.ParseMode) ([]models.InputMedia, io.Closer, error) {
	if len(refs) == 0 {
		return nil, nil, errors.New("no photos to send")
	}
	if len(refs) > MaxGroupSize {
		return nil, nil, fmt.Errorf("album holds at most %d photos, got %d", MaxGroupSize, len(refs))
	}

	closers := make(multiCloser, 0, len(refs))
	group := make([]models.InputMedia, 0, len(refs))

	for i, ref := range refs {
		r, err := Resolve(ref, mediaDir)
		if err != nil {
			_ = closers.Close()
			return nil, nil, err
		}

		item := &models.InputMediaPhoto{Media: r.Ref}
		if r.Kind == KindLocal {
			f, err := os.Open(r.Path)
			if err != nil {
				_ = closers.Close()
				return nil, nil, fmt.Errorf("failed to open photo: %w", err)
			}
			closers = append(closers, f)
			// Attachment names must be unique inside one request.
			name := fmt.Sprintf("photo%d%s", i, filepath.Ext(r.Path))
			item.Media = "attach://" + name
			item.MediaAttachment = f
		}

		if i == 0 && caption != "" {
			item.Caption = caption
			item.ParseMode = parseMode
		}

		group = append(group, item)
	}

	return group, closers, nil
}

// Chunk splits refs into consecutive groups of at most size items.
func Chunk(refs []string, size int) [][]string {
	if size <= 0 {
		size = MaxGroupSize
	}

	var chunks [][]string
	for start := 0; start < len(refs); start += size {
		end := min(start+size, len(refs))
		chunks = append(chunks, refs[start:end])
	}
	return chunks
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
