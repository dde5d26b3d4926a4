package translation

import "strings"

// languagePrefixes are the target-language tokens multi-target Marian models
// expect at the start of each input.
var languagePrefixes = map[string]string{
	"zh":    ">>cmn_Hans<<",
	"zh-cn": ">>cmn_Hans<<",
	"zh-tw": ">>zho_Hant<<",
	"es":    ">>spa<<",
	"fr":    ">>fra<<",
	"de":    ">>deu<<",
	"it":    ">>ita<<",
	"pt":    ">>por<<",
	"ru":    ">>rus<<",
	"nl":    ">>nld<<",
	"pl":    ">>pol<<",
	"sv":    ">>swe<<",
	"da":    ">>dan<<",
	"no":    ">>nno<<",
	"fi":    ">>fin<<",
	"cs":    ">>ces<<",
	"hu":    ">>hun<<",
	"ro":    ">>ron<<",
	"bg":    ">>bul<<",
	"hr":    ">>hrv<<",
	"sk":    ">>slk<<",
	"sl":    ">>slv<<",
	"et":    ">>est<<",
	"lv":    ">>lav<<",
	"ja":    ">>jpn<<",
	"ko":    ">>kor<<",
	"hi":    ">>hin<<",
	"th":    ">>tha<<",
	"vi":    ">>vie<<",
	"ar":    ">>ara<<",
	"lt":    ">>lit<<",
	"ca":    ">>cat<<",
	"eu":    ">>eus<<",
	"gl":    ">>glg<<",
	"mt":    ">>mlt<<",
	"ga":    ">>gle<<",
	"cy":    ">>cym<<",
	"is":    ">>isl<<",
	"mk":    ">>mkd<<",
	"sq":    ">>sqi<<",
	"be":    ">>bel<<",
	"uk":    ">>ukr<<",
	"ka":    ">>kat<<",
	"hy":    ">>hye<<",
	"he":    ">>heb<<",
	"ur":    ">>urd<<",
	"fa":    ">>pes<<",
	"bn":    ">>ben<<",
	"ta":    ">>tam<<",
	"te":    ">>tel<<",
	"ml":    ">>mal<<",
	"kn":    ">>kan<<",
	"gu":    ">>guj<<",
	"or":    ">>ori<<",
	"pa":    ">>pan<<",
	"as":    ">>asm<<",
	"my":    ">>mya<<",
	"km":    ">>khm<<",
	"lo":    ">>lao<<",
	"si":    ">>sin<<",
	"ne":    ">>nep<<",
	"id":    ">>ind<<",
	"ms":    ">>msa<<",
	"tl":    ">>tgl<<",
	"sw":    ">>swa<<",
	"zu":    ">>zul<<",
	"xh":    ">>xho<<",
	"af":    ">>afr<<",
	"am":    ">>amh<<",
	"yo":    ">>yor<<",
	"ig":    ">>ibo<<",
	"ha":    ">>hau<<",
}

// LanguagePrefix returns the target token for language, or "" when none is
// known.
func LanguagePrefix(language string) string {
	return languagePrefixes[strings.ToLower(strings.TrimSpace(language))]
}

// NeedsPrefix reports whether modelID translates into several target
// languages and therefore needs a target token.
func NeedsPrefix(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "en-mul")
}

// PrefixInputs prepares texts for modelID: multi-target models get the target
// token prepended, every other model receives texts unchanged.
func PrefixInputs(modelID, targetLanguage string, texts []string) []string {
	prefix := LanguagePrefix(targetLanguage)
	if !NeedsPrefix(modelID) || prefix == "" {
		return texts
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = prefix + text
	}
	return out
}
