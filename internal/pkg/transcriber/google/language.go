package google

import (
	"fmt"
	"strings"
)

// legacy two-part locale codes rewritten to canonical tags before any provider call
var legacyLocale = map[string]string{
	"zh-TW": "cmn-Hant-TW",
	"zh-CN": "cmn-Hans-CN",
	"zh-HK": "yue-Hant-HK",
}

func normalizeLanguage(lang string) string {
	if v, ok := legacyLocale[lang]; ok {
		return v
	}
	return lang
}

// Routing selects where and with which model a language is recognized
type Routing struct {
	Region string
	Model  string
}

const (
	// LangAuto selects the multi-lingual model
	LangAuto = "auto"

	defaultRegion     = "us-central1"
	defaultModel      = "long"
	multiLingualModel = "chirp_2"
)

var routingByLanguage = map[string]Routing{
	"en-US":       {Region: "us-central1", Model: "long"},
	"en-GB":       {Region: "europe-west2", Model: "long"},
	"cmn-Hant-TW": {Region: "asia-southeast1", Model: "chirp_2"},
	"cmn-Hans-CN": {Region: "asia-southeast1", Model: "chirp_2"},
	"yue-Hant-HK": {Region: "asia-southeast1", Model: "chirp_2"},
	"ja-JP":       {Region: "asia-northeast1", Model: "long"},
	"ko-KR":       {Region: "asia-northeast3", Model: "long"},
	"de-DE":       {Region: "europe-west3", Model: "long"},
	"fr-FR":       {Region: "europe-west4", Model: "long"},
}

// resolveRouting returns (region, model) for a normalized language.
// Override table wins, "auto" selects the multi-lingual model,
// unknown languages get the global default pair
func resolveRouting(lang string, overrides map[string]Routing) Routing {
	if lang == LangAuto {
		return Routing{Region: defaultRegion, Model: multiLingualModel}
	}
	if r, ok := overrides[lang]; ok {
		return r
	}
	if r, ok := routingByLanguage[lang]; ok {
		return r
	}
	return Routing{Region: defaultRegion, Model: defaultModel}
}

// diarizationSupport is the fixed known-good set of (language, model, region) triples
var diarizationSupport = map[string]bool{
	diarizationKey("en-US", "long", "us-central1"):     true,
	diarizationKey("en-GB", "long", "europe-west2"):    true,
	diarizationKey("ja-JP", "long", "asia-northeast1"): true,
	diarizationKey("de-DE", "long", "europe-west3"):    true,
	diarizationKey("fr-FR", "long", "europe-west4"):    true,
}

func diarizationKey(lang, model, region string) string {
	return strings.ToLower(fmt.Sprintf("%s|%s|%s", lang, model, region))
}

func supportsDiarization(lang string, r Routing) bool {
	return diarizationSupport[diarizationKey(lang, r.Model, r.Region)]
}
