// Package session holds state of the current reading session: opened book,
// effective settings and progress. It is the single owner of these values,
// screens get access through small capability interfaces.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tsukiyomi/book"
	"tsukiyomi/bundle"
	"tsukiyomi/clock"
	"tsukiyomi/common"
	"tsukiyomi/store"
)

// Opener accepts freshly imported book.
type Opener interface {
	OpenBook(b *book.Book)
}

// Exporter writes current book with its settings and progress as bundle.
type Exporter interface {
	Export(ctx context.Context, dst string) (string, error)
}

// ErrNoCodec is returned when session was created without bundle codec.
var ErrNoCodec = errors.New("bundle codec is not available")

type Options struct {
	// Defaults are used for everything neither store nor book override.
	Defaults book.Settings
	Locale   *common.Locale
	Codec    *bundle.Codec
	Export   bundle.ExportOptions
	Clock    clock.Source
}

type Session struct {
	id   uuid.UUID
	kv   store.KV
	opts Options
	log  *zap.Logger

	book     *book.Book
	bookID   string
	settings book.Settings
	progress book.Progress
	restore  *book.ProgressPatch
	advisory common.MessageID
	advised  bool
}

func New(kv store.KV, opts Options, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Locale == nil {
		opts.Locale = common.DefaultLocale
	}
	id := uuid.New()
	return &Session{
		id:       id,
		kv:       kv,
		opts:     opts,
		log:      log.Named("session").With(zap.Stringer("session", id)),
		settings: opts.Defaults,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Book() *book.Book {
	return s.book
}

func (s *Session) BookID() string {
	return s.bookID
}

func (s *Session) Settings() book.Settings {
	return s.settings
}

func (s *Session) Progress() book.Progress {
	return s.progress
}

// RestorePoint returns position as it was recorded, nil fields were never
// stored.
func (s *Session) RestorePoint() *book.ProgressPatch {
	return s.restore
}

// Advisory returns pending user facing message about failed persistence and
// clears it.
func (s *Session) Advisory() string {
	if !s.advised {
		return ""
	}
	s.advised = false
	return s.opts.Locale.Msg(s.advisory)
}

func (s *Session) advise(id common.MessageID, err error, msg string, fields ...zap.Field) {
	s.advisory, s.advised = id, true
	s.log.Warn(msg, append(fields, zap.Error(err))...)
}

// OpenBook makes b current. Settings are layered: defaults, then settings
// stored by previous sessions, then settings embedded into the book.
// Progress comes from the book only.
func (s *Session) OpenBook(b *book.Book) {
	s.book, s.bookID = b, b.ID()

	settings := s.opts.Defaults
	stored, ok, err := store.LoadJSON[book.SettingsPatch](s.kv, store.KeySettings)
	if err != nil {
		s.advise(common.MsgStoreReadFailed, err, "Unable to load stored settings")
	} else if ok {
		settings = settings.Merge(&stored)
	}
	s.settings = settings.Merge(b.Settings)
	s.progress = book.Progress{}.Merge(b.Progress)
	s.restore = b.Progress

	s.log.Info("Book opened", zap.String("title", b.Title), zap.String("id", s.bookID), zap.Int("chapters", len(b.TOC)))
	s.log.Debug("Effective state", zap.Stringer("settings", s.settings), zap.Stringer("progress", b.Progress))
}

// RestoreLast reopens book cached by previous session with its stored
// progress. Returns false when there is nothing usable to restore.
func (s *Session) RestoreLast() bool {
	cache, ok, err := store.LoadJSON[store.BookCache](s.kv, store.KeyLastBookCache)
	if err != nil {
		s.advise(common.MsgStoreReadFailed, err, "Unable to load book cache")
		return false
	}
	b := cache.Book()
	if !ok || b == nil {
		return false
	}
	s.OpenBook(b)

	rec, ok, err := store.LoadJSON[store.ProgressRecord](s.kv, store.ProgressKey(s.bookID))
	switch {
	case err != nil:
		s.advise(common.MsgStoreReadFailed, err, "Unable to load reading progress")
	case ok:
		s.restore = rec.Patch()
		s.progress = book.Progress{}.Merge(s.restore)
	}
	return true
}

// PersistLastOpened stores pointer to the current book and its lightweight
// copy for restoring on next start.
func (s *Session) PersistLastOpened() {
	if s.book == nil || s.bookID == "" {
		return
	}
	now := store.Timestamp(s.opts.Clock.Now())
	title := book.SafeText(s.book.Title, "Untitled")
	toc := s.book.TOC
	if toc == nil {
		toc = []book.TocEntry{}
	}

	err1 := store.SaveJSON(s.kv, store.KeyLastOpened, store.LastOpened{
		BookID:     s.bookID,
		Title:      title,
		SourceType: store.SourceCache,
		SavedAt:    now,
	})
	err2 := store.SaveJSON(s.kv, store.KeyLastBookCache, store.BookCache{
		BookID:   s.bookID,
		Title:    title,
		HTML:     s.book.HTML,
		TOC:      toc,
		CachedAt: now,
	})
	if err := errors.Join(err1, err2); err != nil {
		s.advise(common.MsgCacheSaveFailed, err, "Unable to save book cache")
	}
}

// PersistEmbedded stores settings and progress which came with the current
// book, so sessions restoring it from cache see them instead of defaults.
func (s *Session) PersistEmbedded() {
	if s.book == nil {
		return
	}
	if s.book.Settings != nil {
		s.UpdateSettings(s.settings)
	}
	if s.book.Progress != nil {
		s.UpdateProgress(s.book.Progress)
	}
}

// UpdateSettings replaces current settings and stores them for later
// sessions.
func (s *Session) UpdateSettings(next book.Settings) {
	s.settings = next
	if err := store.SaveJSON(s.kv, store.KeySettings, next); err != nil {
		s.advise(common.MsgCacheSaveFailed, err, "Unable to save settings")
	}
}

// UpdateProgress merges reported position and stores it.
func (s *Session) UpdateProgress(p *book.ProgressPatch) {
	s.progress = s.progress.Merge(p)
	if s.bookID == "" {
		return
	}
	rec := store.NewProgressRecord(s.progress, store.Timestamp(s.opts.Clock.Now()))
	if err := store.SaveJSON(s.kv, store.ProgressKey(s.bookID), rec); err != nil {
		s.advise(common.MsgProgressSaveFailed, err, "Unable to save reading progress", zap.String("id", s.bookID))
	}
}

// Export writes current book as bundle. Session state is never changed.
func (s *Session) Export(ctx context.Context, dst string) (string, error) {
	if s.opts.Codec == nil {
		return "", common.NewUserError(common.MsgArchiveUnavailable, ErrNoCodec)
	}
	settings, progress := s.settings, s.progress
	return s.opts.Codec.Export(ctx, dst, s.book, &settings, &progress, s.opts.Export, s.opts.Clock.Now())
}

var (
	_ Opener   = (*Session)(nil)
	_ Exporter = (*Session)(nil)
)
