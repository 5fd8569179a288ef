package google

import (
	"path/filepath"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
)

type audioFormat struct {
	Encoding   string
	SampleRate int
	Channels   int
}

var formatByExt = map[string]audioFormat{
	".wav":  {Encoding: "LINEAR16", SampleRate: 16000, Channels: 1},
	".flac": {Encoding: "FLAC", SampleRate: 16000, Channels: 1},
	".mp3":  {Encoding: "MP3", SampleRate: 44100, Channels: 2},
	".m4a":  {Encoding: "MP4_AAC", SampleRate: 44100, Channels: 2},
	".mp4":  {Encoding: "MP4_AAC", SampleRate: 44100, Channels: 2},
	".aac":  {Encoding: "MP4_AAC", SampleRate: 44100, Channels: 2},
	".ogg":  {Encoding: "OGG_OPUS", SampleRate: 48000, Channels: 2},
	".opus": {Encoding: "OGG_OPUS", SampleRate: 48000, Channels: 1},
	".webm": {Encoding: "WEBM_OPUS", SampleRate: 48000, Channels: 2},
	".amr":  {Encoding: "AMR", SampleRate: 8000, Channels: 1},
}

// extensions that typically carry recorded speech - force mono so the
// recognizer does not bill and process both channels of a voice memo
var speechExt = map[string]bool{".mp3": true, ".m4a": true, ".mp4": true,
	".aac": true, ".ogg": true, ".webm": true}

var fallbackFormat = audioFormat{Encoding: "ENCODING_UNSPECIFIED", SampleRate: 44100, Channels: 1}

// detectFormat maps a file name to recognizer encoding parameters.
// Unknown extensions get a safe fallback, never an error
func detectFormat(filename string) audioFormat {
	ext := strings.ToLower(filepath.Ext(filename))
	res, ok := formatByExt[ext]
	if !ok {
		goapp.Log.Warn().Str("file", filename).Str("ext", ext).Msg("unknown audio extension - using fallback format")
		return fallbackFormat
	}
	if speechExt[ext] {
		res.Channels = 1
	}
	return res
}
