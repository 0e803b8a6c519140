//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: ciao\nwelcome_user: ciao %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "ciao" {
			t.Errorf("wanted 'ciao', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Marco"); got != "ciao Marco" {
			t.Errorf("wanted 'ciao Marco', got '%s'", got)
		}
	})
}

func TestTranslatorFallsBackToEnglish(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte("a: hello\nb: bye\n")},
		"locales/it.yaml": {Data: []byte("a: ciao\n")},
	}
	tr, err := NewTranslator(fsys, "it")
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	if got := tr.T("a"); got != "ciao" {
		t.Errorf("wanted 'ciao', got %q", got)
	}
	if got := tr.T("b"); got != "bye" {
		t.Errorf("wanted english fallback 'bye', got %q", got)
	}
}

func TestEmbeddedLocalesHaveSameKeys(t *testing.T) {
	en, err := readLocale(LocalesFS, "en")
	if err != nil {
		t.Fatalf("en: %v", err)
	}
	it, err := readLocale(LocalesFS, "it")
	if err != nil {
		t.Fatalf("it: %v", err)
	}
	for k := range en {
		if _, ok := it[k]; !ok {
			t.Errorf("it.yaml is missing %q", k)
		}
	}
	for k := range it {
		if _, ok := en[k]; !ok {
			t.Errorf("en.yaml is missing %q", k)
		}
	}
}
