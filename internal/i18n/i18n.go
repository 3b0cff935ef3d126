// Package i18n loads the embedded bot texts and translates them per user language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Translator resolves message ids into localized text.
type Translator struct {
	bundle      *i18n.Bundle
	defaultLang string

	mu         sync.RWMutex
	localizers map[string]*i18n.Localizer
}

// New parses every embedded locale file. defaultLang is used when a user's
// language is empty or has no translation for a message.
func New(defaultLang string) (*Translator, error) {
	bundle := i18n.NewBundle(language.Russian)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", f.Name(), err)
		}
	}

	defaultLang = normalize(defaultLang)
	if defaultLang == "" {
		defaultLang = "ru"
	}

	return &Translator{
		bundle:      bundle,
		defaultLang: defaultLang,
		localizers:  make(map[string]*i18n.Localizer),
	}, nil
}

// DefaultLanguage returns the fallback language.
func (t *Translator) DefaultLanguage() string {
	return t.defaultLang
}

// Languages lists the languages that have a locale file.
func (t *Translator) Languages() []string {
	tags := t.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}

// Language maps a Telegram language code onto a supported language.
func (t *Translator) Language(code string) string {
	code = normalize(code)
	if code == "" {
		return t.defaultLang
	}
	for _, tag := range t.bundle.LanguageTags() {
		if tag.String() == code {
			return code
		}
	}
	return t.defaultLang
}

// T translates id for lang. Missing messages return the id itself.
func (t *Translator) T(lang, id string, data map[string]any) string {
	msg, err := t.localizer(t.Language(lang)).Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}

func (t *Translator) localizer(lang string) *i18n.Localizer {
	t.mu.RLock()
	l, ok := t.localizers[lang]
	t.mu.RUnlock()
	if ok {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.localizers[lang]; ok {
		return l
	}
	l = i18n.NewLocalizer(t.bundle, lang, t.defaultLang)
	t.localizers[lang] = l
	return l
}

// normalize reduces "en-US" or "pt_BR" to its base language.
func normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}
