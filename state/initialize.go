package state

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"

	"tsukiyomi/book"
	"tsukiyomi/bundle"
	"tsukiyomi/common"
	"tsukiyomi/library"
	"tsukiyomi/session"
	"tsukiyomi/store"
	"tsukiyomi/viewport"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start:        time.Now(),
		Locale:       common.DefaultLocale,
		EncodingMode: common.EncodingModeAuto,
		Legacy:       japanese.ShiftJIS,
	}
}

// Encoding returns character set by its IANA name.
func Encoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown character set %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("character set %q is not supported", name)
	}
	return enc, nil
}

// Configure derives runtime values from loaded configuration.
func (e *LocalEnv) Configure() error {
	e.Locale = common.NewLocale(e.Cfg.Import.Locale)
	e.EncodingMode = e.Cfg.Import.Encoding

	enc, err := Encoding(e.Cfg.Import.LegacyEncoding)
	if err != nil {
		return fmt.Errorf("bad legacy encoding: %w", err)
	}
	e.Legacy = enc
	return nil
}

// OpenStore opens session store configured, records are kept in memory when
// no path is set.
func (e *LocalEnv) OpenStore() error {
	if e.Store != nil {
		return nil
	}
	if e.Cfg == nil || e.Cfg.Store.Path == "" {
		e.Store = store.NewMemory(0)
		return nil
	}
	kv, err := store.OpenSQLite(e.Cfg.Store.Path, e.Log)
	if err != nil {
		return err
	}
	e.Store = kv
	return nil
}

// DefaultSettings are reader settings from configuration.
func (e *LocalEnv) DefaultSettings() book.Settings {
	if e.Cfg == nil {
		return book.DefaultSettings()
	}
	r := e.Cfg.Reader
	return book.Settings{
		FontSize:      r.FontSize,
		LineHeight:    r.LineHeight,
		LetterSpacing: r.LetterSpacing,
		Theme:         r.Theme,
		DisplayMode:   r.DisplayMode,
		PageEffect:    r.PageEffect,
		TapInScroll:   r.TapInScroll,
	}
}

// Geometry of simulated viewport from configuration.
func (e *LocalEnv) Geometry() viewport.Geometry {
	if e.Cfg == nil {
		return viewport.Geometry{Width: 400, Height: 640, ChapterExtent: 1200}
	}
	v := e.Cfg.Reader.Viewport
	return viewport.Geometry{Width: float64(v.Width), Height: float64(v.Height), ChapterExtent: float64(v.ChapterExtent)}
}

func (e *LocalEnv) Codec() *bundle.Codec {
	return bundle.New(e.Locale, e.CodePage, e.logger())
}

func (e *LocalEnv) Loader() *library.Loader {
	return library.NewLoader(e.Locale, e.Codec(), e.EncodingMode, e.Legacy, e.logger())
}

// NewSession creates session over opened store.
func (e *LocalEnv) NewSession() *session.Session {
	if e.Store == nil {
		e.Store = store.NewMemory(0)
	}
	return e.newSession(e.Store)
}

// NewScratchSession creates session which never touches opened store.
func (e *LocalEnv) NewScratchSession() *session.Session {
	return e.newSession(store.NewMemory(0))
}

func (e *LocalEnv) newSession(kv store.KV) *session.Session {
	opts := session.Options{
		Defaults: e.DefaultSettings(),
		Locale:   e.Locale,
		Codec:    e.Codec(),
	}
	if e.Cfg != nil {
		opts.Export = bundle.OptionsFromConfig(&e.Cfg.Bundle, e.Overwrite)
	} else {
		opts.Export = bundle.ExportOptions{Overwrite: e.Overwrite}
	}
	s := session.New(kv, opts, e.logger())
	e.logger().Debug("Session created", zap.Stringer("id", s.ID()))
	return s
}

func (e *LocalEnv) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}
