package transcache

import "strings"

// LanguageNames maps locale codes to human-readable names for provider prompts.
var LanguageNames = map[string]string{
	"en_US": "English (United States)",
	"en_GB": "English (United Kingdom)",
	"de_DE": "German (Germany)",
	"es_ES": "Spanish (Spain)",
	"es_MX": "Spanish (Mexico)",
	"fr_FR": "French (France)",
	"it_IT": "Italian (Italy)",
	"ja_JP": "Japanese (Japan)",
	"pt_BR": "Portuguese (Brazil)",
	"pt_PT": "Portuguese (Portugal)",
	"zh_CN": "Chinese (Simplified)",
	"zh_TW": "Chinese (Traditional)",
	"ar_SA": "Arabic (Saudi Arabia)",
	"bn_BD": "Bengali (Bangladesh)",
	"gu_IN": "Gujarati (India)",
	"he_IL": "Hebrew (Israel)",
	"hi_IN": "Hindi (India)",
	"kn_IN": "Kannada (India)",
	"ko_KR": "Korean (South Korea)",
	"mr_IN": "Marathi (India)",
	"nl_NL": "Dutch (Netherlands)",
	"pa_IN": "Punjabi (India)",
	"pl_PL": "Polish (Poland)",
	"ru_RU": "Russian (Russia)",
	"ta_IN": "Tamil (India)",
	"te_IN": "Telugu (India)",
	"tr_TR": "Turkish (Turkey)",
	"uk_UA": "Ukrainian (Ukraine)",
	"ur_PK": "Urdu (Pakistan)",
	"vi_VN": "Vietnamese (Vietnam)",
}

// ShortCodeToLocale maps short language codes to full locale codes.
var ShortCodeToLocale = map[string]string{
	"en": "en_US",
	"de": "de_DE",
	"es": "es_ES",
	"fr": "fr_FR",
	"it": "it_IT",
	"ja": "ja_JP",
	"pt": "pt_BR",
	"zh": "zh_CN",
	"ko": "ko_KR",
	"ru": "ru_RU",
	"ar": "ar_SA",
	"bn": "bn_BD",
	"gu": "gu_IN",
	"he": "he_IL",
	"hi": "hi_IN",
	"kn": "kn_IN",
	"mr": "mr_IN",
	"nl": "nl_NL",
	"pa": "pa_IN",
	"pl": "pl_PL",
	"ta": "ta_IN",
	"te": "te_IN",
	"tr": "tr_TR",
	"ur": "ur_PK",
	"vi": "vi_VN",
}

// RTLLanguages contains base language codes that use right-to-left text direction.
var RTLLanguages = map[string]bool{
	"ar": true, // Arabic
	"he": true, // Hebrew
	"fa": true, // Persian/Farsi
	"ur": true, // Urdu
	"ps": true, // Pashto
	"sd": true, // Sindhi
	"ug": true, // Uyghur
}

// GetLanguageName returns the human-readable name for a language code.
// Falls back to the code itself if not found.
func GetLanguageName(langCode string) string {
	code := NormalizeLocale(langCode)
	if name, ok := LanguageNames[code]; ok {
		return name
	}
	if locale, ok := ShortCodeToLocale[strings.ToLower(code)]; ok {
		if name, ok := LanguageNames[locale]; ok {
			return name
		}
	}
	return langCode
}

// GetDirection returns "rtl" for right-to-left languages, "ltr" otherwise.
func GetDirection(langCode string) string {
	if RTLLanguages[baseLang(langCode)] {
		return "rtl"
	}
	return "ltr"
}

// IsRTL returns true if the language uses right-to-left text direction.
func IsRTL(langCode string) bool {
	return GetDirection(langCode) == "rtl"
}

// NormalizeLocale converts a language code to the standard format (e.g., "es-ES" → "es_ES").
func NormalizeLocale(langCode string) string {
	return strings.ReplaceAll(strings.TrimSpace(langCode), "-", "_")
}

// ToHTMLLang converts a locale code to HTML lang attribute format (e.g., "es_ES" → "es-ES").
func ToHTMLLang(langCode string) string {
	return strings.ReplaceAll(langCode, "_", "-")
}

// SameLanguage reports whether two language codes name the same locale,
// ignoring case and the "-"/"_" separator. "en_US" and "en_GB" differ.
func SameLanguage(a, b string) bool {
	return canonicalLang(a) == canonicalLang(b)
}

// canonicalLang is the form used in cache keys and pair grouping.
func canonicalLang(langCode string) string {
	return strings.ToLower(NormalizeLocale(langCode))
}

// baseLang extracts the base language code (e.g., "en" from "en_US").
func baseLang(langCode string) string {
	return strings.SplitN(canonicalLang(langCode), "_", 2)[0]
}
