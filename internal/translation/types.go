package translation

// Request is the run payload: the subtitle texts to translate, in order.
type Request struct {
	Texts []string `json:"texts"`
}

// Options selects the language pair for a run.
type Options struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	MaxLength      int    `json:"maxLength,omitempty"`
}

// Result pairs every input text with its translation. TranslatedTexts always
// has the same length as OriginalTexts.
type Result struct {
	OriginalTexts   []string `json:"originalTexts"`
	TranslatedTexts []string `json:"translatedTexts"`
	SourceLanguage  string   `json:"sourceLanguage"`
	TargetLanguage  string   `json:"targetLanguage"`
	ModelUsed       string   `json:"modelUsed"`
	FailedBatches   []int    `json:"failedBatches,omitempty"`
}

const (
	maxBatch     = 10
	batchBudget  = 100
	defaultMax   = 512
	unknownModel = "unknown"
)

// BatchSize returns how many texts go into one engine call for a run of
// total texts.
func BatchSize(total int) int {
	if total <= 0 {
		return 1
	}
	return min(maxBatch, max(1, batchBudget/total))
}

// fitLength pads out with the matching originals or truncates it so it has
// exactly len(originals) entries.
func fitLength(out, originals []string) []string {
	if len(out) >= len(originals) {
		return out[:len(originals)]
	}
	fitted := make([]string, len(originals))
	copy(fitted, out)
	copy(fitted[len(out):], originals[len(out):])
	return fitted
}
