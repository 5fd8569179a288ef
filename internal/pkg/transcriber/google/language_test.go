package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_normalizeLanguage(t *testing.T) {
	assert.Equal(t, "cmn-Hant-TW", normalizeLanguage("zh-TW"))
	assert.Equal(t, "cmn-Hans-CN", normalizeLanguage("zh-CN"))
	assert.Equal(t, "yue-Hant-HK", normalizeLanguage("zh-HK"))
	assert.Equal(t, "en-US", normalizeLanguage("en-US"))
	assert.Equal(t, "cmn-Hant-TW", normalizeLanguage("cmn-Hant-TW"))
}

func Test_resolveRouting(t *testing.T) {
	tests := []struct {
		name      string
		lang      string
		overrides map[string]Routing
		want      Routing
	}{
		{name: "known", lang: "en-US", want: Routing{Region: "us-central1", Model: "long"}},
		{name: "known gb", lang: "en-GB", want: Routing{Region: "europe-west2", Model: "long"}},
		{name: "mandarin", lang: "cmn-Hant-TW", want: Routing{Region: "asia-southeast1", Model: "chirp_2"}},
		{name: "auto", lang: "auto", want: Routing{Region: "us-central1", Model: "chirp_2"}},
		{name: "unknown", lang: "sw-KE", want: Routing{Region: "us-central1", Model: "long"}},
		{name: "override wins", lang: "en-US",
			overrides: map[string]Routing{"en-US": {Region: "europe-west1", Model: "chirp_2"}},
			want:      Routing{Region: "europe-west1", Model: "chirp_2"}},
		{name: "override other lang", lang: "ja-JP",
			overrides: map[string]Routing{"en-US": {Region: "europe-west1", Model: "chirp_2"}},
			want:      Routing{Region: "asia-northeast1", Model: "long"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRouting(tt.lang, tt.overrides))
		})
	}
}

func Test_supportsDiarization(t *testing.T) {
	assert.True(t, supportsDiarization("en-US", Routing{Region: "us-central1", Model: "long"}))
	assert.True(t, supportsDiarization("en-GB", Routing{Region: "europe-west2", Model: "long"}))
	assert.True(t, supportsDiarization("ja-JP", Routing{Region: "asia-northeast1", Model: "long"}))
	assert.False(t, supportsDiarization("en-US", Routing{Region: "us-central1", Model: "chirp_2"}))
	assert.False(t, supportsDiarization("en-US", Routing{Region: "europe-west2", Model: "long"}))
	assert.False(t, supportsDiarization("ko-KR", Routing{Region: "asia-northeast3", Model: "long"}))
	assert.False(t, supportsDiarization("auto", Routing{Region: "us-central1", Model: "chirp_2"}))
}
