package common

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
)

// MessageID identifies short user facing string.
type MessageID int

const (
	MsgBody MessageID = iota
	MsgChapter
	MsgUntitled
	MsgTextLoading
	MsgTextLoaded
	MsgHTMLLoading
	MsgHTMLLoaded
	MsgBundleLoading
	MsgBundleLoaded
	MsgLoadFailed
	MsgNoBookToSave
	MsgNoBookToExport
	MsgBundleEntriesMissing
	MsgBundleUnsupported
	MsgArchiveUnavailable
	MsgExportFailed
	MsgExported
	MsgCacheSaveFailed
	MsgProgressSaveFailed
	MsgTemplateFailed
	MsgStoreReadFailed
	MsgNoSavedBook
)

var catalogs = map[language.Tag]map[MessageID]string{
	language.Japanese: {
		MsgBody:                 "本文",
		MsgChapter:              "章%d",
		MsgUntitled:             "Untitled",
		MsgTextLoading:          "TXT読み込み中...",
		MsgTextLoaded:           "TXT読み込み完了",
		MsgHTMLLoading:          "HTML読み込み中...",
		MsgHTMLLoaded:           "HTML読み込み完了",
		MsgBundleLoading:        "ZIP読み込み中...",
		MsgBundleLoaded:         "ZIP読み込み完了",
		MsgLoadFailed:           "読み込みに失敗しました",
		MsgNoBookToSave:         "保存する本がありません",
		MsgNoBookToExport:       "書き出す本がありません。",
		MsgBundleEntriesMissing: "meta.json または book.html が見つかりません。",
		MsgBundleUnsupported:    "対応していないフォーマットです。",
		MsgArchiveUnavailable:   "アーカイブを作成できません。",
		MsgExportFailed:         "書き出しに失敗しました",
		MsgExported:             "書き出し完了",
		MsgCacheSaveFailed:      "キャッシュ保存に失敗しました（容量不足の可能性）",
		MsgProgressSaveFailed:   "進捗保存に失敗しました（容量不足の可能性）",
		MsgTemplateFailed:       "ファイル名テンプレートを展開できません",
		MsgStoreReadFailed:      "保存データを読み込めません",
		MsgNoSavedBook:          "前回の本が見つかりません",
	},
	language.English: {
		MsgBody:                 "Body",
		MsgChapter:              "Chapter %d",
		MsgUntitled:             "Untitled",
		MsgTextLoading:          "Loading text...",
		MsgTextLoaded:           "Text loaded",
		MsgHTMLLoading:          "Loading HTML...",
		MsgHTMLLoaded:           "HTML loaded",
		MsgBundleLoading:        "Loading bundle...",
		MsgBundleLoaded:         "Bundle loaded",
		MsgLoadFailed:           "Unable to load file",
		MsgNoBookToSave:         "No book to save",
		MsgNoBookToExport:       "No book to export.",
		MsgBundleEntriesMissing: "meta.json or book.html not found.",
		MsgBundleUnsupported:    "Unsupported format.",
		MsgArchiveUnavailable:   "Unable to create archive.",
		MsgExportFailed:         "Export failed",
		MsgExported:             "Export completed",
		MsgCacheSaveFailed:      "Unable to save book cache (storage may be full)",
		MsgProgressSaveFailed:   "Unable to save reading progress (storage may be full)",
		MsgTemplateFailed:       "Unable to expand file name template",
		MsgStoreReadFailed:      "Unable to read saved data",
		MsgNoSavedBook:          "No previously opened book",
	},
}

var matcher = language.NewMatcher([]language.Tag{language.Japanese, language.English})

// Locale selects localized strings.
type Locale struct {
	Tag  language.Tag
	msgs map[MessageID]string
}

// NewLocale returns best matching locale for requested language, Japanese
// is the default.
func NewLocale(name string) *Locale {
	tag := language.Japanese
	if t, err := language.Parse(name); err == nil {
		_, idx, conf := matcher.Match(t)
		if conf != language.No {
			tag = []language.Tag{language.Japanese, language.English}[idx]
		}
	}
	return &Locale{Tag: tag, msgs: catalogs[tag]}
}

// DefaultLocale is used when nothing else is available.
var DefaultLocale = NewLocale("ja")

func (l *Locale) Msg(id MessageID) string {
	if l == nil {
		l = DefaultLocale
	}
	if s, ok := l.msgs[id]; ok {
		return s
	}
	return catalogs[language.Japanese][id]
}

// Body is the title of implicit chapter.
func (l *Locale) Body() string {
	return l.Msg(MsgBody)
}

// Chapter returns default title for chapter with 1-based index n.
func (l *Locale) Chapter(n int) string {
	return fmt.Sprintf(l.Msg(MsgChapter), n)
}

func (l *Locale) Untitled() string {
	return l.Msg(MsgUntitled)
}

// UserError carries localized message to be shown to the user while keeping
// underlying error for the log.
type UserError struct {
	ID  MessageID
	Err error
}

func NewUserError(id MessageID, err error) *UserError {
	return &UserError{ID: id, Err: err}
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return DefaultLocale.Msg(e.ID)
	}
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// UserMessage returns short localized message for err, generic load failure
// when err carries none.
func UserMessage(err error, loc *Locale) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return loc.Msg(ue.ID)
	}
	return loc.Msg(MsgLoadFailed)
}
