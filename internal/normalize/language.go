package normalize

// DefaultLanguage is the index language assumed when no setting has been
// saved yet.
const DefaultLanguage = "en"

// postgresConfigs maps a short language code to the name of the Postgres
// text-search configuration that stems and stop-words that language. Codes
// without a configuration fall back to english rather than failing the
// write path.
var postgresConfigs = map[string]string{
	"ar": "arabic",
	"da": "danish",
	"de": "german",
	"el": "greek",
	"en": "english",
	"es": "spanish",
	"fi": "finnish",
	"fr": "french",
	"ga": "irish",
	"hu": "hungarian",
	"id": "indonesian",
	"it": "italian",
	"lt": "lithuanian",
	"ne": "nepali",
	"nl": "dutch",
	"no": "norwegian",
	"pt": "portuguese",
	"ro": "romanian",
	"ru": "russian",
	"sv": "swedish",
	"tr": "turkish",
}

// bleveAnalyzers maps a short language code to a bleve analyzer name
// registered by the engine. CJK scripts share one analyzer; codes with no
// language-specific analyzer use the standard one.
var bleveAnalyzers = map[string]string{
	"ar": "ar",
	"da": "da",
	"de": "de",
	"en": "en",
	"es": "es",
	"fa": "fa",
	"fi": "fi",
	"fr": "fr",
	"hi": "hi",
	"hu": "hu",
	"it": "it",
	"ja": "cjk",
	"ko": "cjk",
	"nl": "nl",
	"no": "no",
	"pt": "pt",
	"ro": "ro",
	"ru": "ru",
	"sv": "sv",
	"tr": "tr",
	"zh": "cjk",
}

// Supported reports whether code names a language either engine can index.
// The union of both engine tables is accepted so a settings change never
// depends on which backend happens to be configured.
func Supported(code string) bool {
	if code == "" {
		return false
	}
	if _, ok := postgresConfigs[code]; ok {
		return true
	}
	_, ok := bleveAnalyzers[code]
	return ok
}

// PostgresConfig returns the Postgres text-search configuration for code,
// "english" when the code has no configuration of its own.
func PostgresConfig(code string) string {
	if name, ok := postgresConfigs[code]; ok {
		return name
	}
	return "english"
}

// BleveAnalyzer returns the bleve analyzer name for code, "standard" when
// no language-specific analyzer exists.
func BleveAnalyzer(code string) string {
	if name, ok := bleveAnalyzers[code]; ok {
		return name
	}
	return "standard"
}
