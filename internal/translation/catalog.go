package translation

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Model describes a selectable translation model.
type Model struct {
	ID          string
	DisplayName string
	Size        string
	Description string
	Source      string
	Target      string
}

// Multi is the pseudo language code of multilingual models.
const Multi = "mul"

// SupportedLanguages are the language codes offered for source and target.
var SupportedLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "nl", "ru", "zh", "ja",
	"ko", "ar", "hi", "th", "vi", "pl", "cs", "sk", "hu", "ro",
	"bg", "hr", "sl", "et", "lv", "lt", "fi", "sv", "da", "no",
}

// Models lists the Marian translation models, directional pairs first.
var Models = buildModels()

func buildModels() []Model {
	pairs := [][2]string{
		{"en", "es"}, {"es", "en"},
		{"en", "fr"}, {"fr", "en"},
		{"en", "de"}, {"de", "en"},
		{"en", "it"}, {"it", "en"},
		{"en", "ru"}, {"ru", "en"},
	}
	models := make([]Model, 0, len(pairs)+2)
	for _, p := range pairs {
		from, to := LanguageName(p[0]), LanguageName(p[1])
		models = append(models, Model{
			ID:          fmt.Sprintf("opus-mt-%s-%s", p[0], p[1]),
			DisplayName: fmt.Sprintf("%s to %s", from, to),
			Size:        "~220MB",
			Description: fmt.Sprintf("High-quality %s to %s translation", from, to),
			Source:      p[0],
			Target:      p[1],
		})
	}
	return append(models,
		Model{
			ID:          "opus-mt-en-mul",
			DisplayName: "English to Multiple Languages",
			Size:        "~500MB",
			Description: "English to multiple target languages (supports 50+ languages)",
			Source:      "en",
			Target:      Multi,
		},
		Model{
			ID:          "opus-mt-mul-en",
			DisplayName: "Multiple Languages to English",
			Size:        "~500MB",
			Description: "Multiple source languages to English",
			Source:      Multi,
			Target:      "en",
		},
	)
}

// LookupModel returns the catalog entry for id. Hub-style ids such as
// "Helsinki-NLP/opus-mt-en-es" match their short form.
func LookupModel(id string) (Model, bool) {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// ModelFor picks the best catalog model for a language pair: a directional
// model when one exists, else the multilingual model on the English side.
func ModelFor(source, target string) (Model, bool) {
	source, target = strings.ToLower(source), strings.ToLower(target)
	var fallback Model
	found := false
	for _, m := range Models {
		if m.Source == source && m.Target == target {
			return m, true
		}
		if !found && ((m.Source == source && m.Target == Multi && LanguagePrefix(target) != "") ||
			(m.Target == target && m.Source == Multi)) {
			fallback, found = m, true
		}
	}
	return fallback, found
}

// Supports reports whether m can translate from source into target.
func (m Model) Supports(source, target string) bool {
	source, target = strings.ToLower(source), strings.ToLower(target)
	srcOK := m.Source == source || m.Source == Multi
	dstOK := m.Target == target || (m.Target == Multi && LanguagePrefix(target) != "")
	return srcOK && dstOK && source != target
}

// LanguageName returns the English display name of a language code, falling
// back to the code itself.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

const (
	perText      = 200 * time.Millisecond
	minTranslate = 5 * time.Second
)

// Estimate predicts processing time for a run of texts.
func Estimate(texts int) time.Duration {
	return max(time.Duration(texts)*perText, minTranslate)
}
