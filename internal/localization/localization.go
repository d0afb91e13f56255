// Package localization provides functionality for internationalization (i18n).
// It loads translation strings from JSON files and provides a simple way to get
// localized strings for different languages. The built-in locales are embedded;
// a directory on disk can override them.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed locales/*.json
var embedded embed.FS

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// Default returns a Localizer with the embedded locales only.
func Default() *Localizer {
	l := &Localizer{translations: make(map[string]map[string]string)}
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		panic(err)
	}
	if err := l.loadFS(sub); err != nil {
		panic(err)
	}
	return l
}

// NewLocalizer loads the embedded locales and then every JSON file found in
// path (e.g. "en.json"), whose keys override the embedded ones.
// A missing directory is not an error.
func NewLocalizer(path string) (*Localizer, error) {
	l := Default()
	if path == "" {
		return l, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return l, nil
	}
	if err := l.loadFS(os.DirFS(path)); err != nil {
		return nil, fmt.Errorf("failed to load localization directory %s: %w", filepath.Clean(path), err)
	}
	return l, nil
}

func (l *Localizer) loadFS(fsys fs.FS) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read localization directory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		if l.translations[lang] == nil {
			l.translations[lang] = make(map[string]string, len(translations))
		}
		for k, v := range translations {
			l.translations[lang][k] = v
		}
	}
	return nil
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	// Fallback to a default language if the key is not found in the specified language
	if lang != "en" {
		if enTranslations, ok := l.translations["en"]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// Format is GetString followed by fmt.Sprintf.
func (l *Localizer) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}

// Starters returns the conversation starters for lang, falling back to English
// for languages without any.
func (l *Localizer) Starters(lang string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	collect := func(m map[string]string) []string {
		keys := make([]string, 0)
		for k := range m {
			if strings.HasPrefix(k, "starter.") {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, m[k])
		}
		return out
	}

	if out := collect(l.translations[lang]); len(out) > 0 {
		return out
	}
	return collect(l.translations["en"])
}
