package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const fallbackLang = "en"

// Translator resolves message keys to localized text. Keys missing from the
// requested language fall back to English, then to the key itself.
type Translator struct {
	lang         string
	translations map[string]string
	fallback     map[string]string
}

func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	primary, err := readLocale(fsys, langCode)
	if err != nil {
		return nil, err
	}
	t := &Translator{lang: langCode, translations: primary}
	if langCode != fallbackLang {
		if fb, err := readLocale(fsys, fallbackLang); err == nil {
			t.fallback = fb
		}
	}
	return t, nil
}

func readLocale(fsys fs.FS, langCode string) (map[string]string, error) {
	p := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", p, err)
	}
	m, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse translation file %s: %w", p, err)
	}
	return m, nil
}

func parse(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	m, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Translator{translations: m}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T translates key, formatting args with fmt.Sprintf when given.
func (t *Translator) T(key string, args ...any) string {
	format, ok := t.translations[key]
	if !ok {
		if format, ok = t.fallback[key]; !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
