package google

import (
	"strings"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
)

type wordInfo struct {
	Word       string   `json:"word"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence,omitempty"`
	Speaker    int      `json:"speaker,omitempty"`
}

type alternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []wordInfo `json:"words,omitempty"`
}

type recognitionResult struct {
	Alternatives []alternative `json:"alternatives"`
}

const (
	// a silence longer than this starts a new segment for the same speaker
	maxWordGapSec = 2.0
	// speaking-rate heuristic for results without word timing
	wordsPerSecond    = 2.5
	minSegmentSec     = 1.0
	untimedSegmentGap = 0.5
	defaultSpeakerID  = 1
)

// reconstructDiarized groups word-level results into speaker segments.
// Words of one speaker are split on gaps longer than maxWordGapSec,
// the returned list is sorted by start time regardless of input order
func reconstructDiarized(words []wordInfo) []api.TranscriptSegment {
	bySpeaker := map[int][]wordInfo{}
	var speakers []int
	for _, w := range words {
		if _, ok := bySpeaker[w.Speaker]; !ok {
			speakers = append(speakers, w.Speaker)
		}
		bySpeaker[w.Speaker] = append(bySpeaker[w.Speaker], w)
	}
	var res []api.TranscriptSegment
	for _, sp := range speakers {
		res = append(res, segmentsForSpeaker(sp, bySpeaker[sp])...)
	}
	api.SortSegments(res)
	return res
}

func segmentsForSpeaker(speaker int, words []wordInfo) []api.TranscriptSegment {
	var res []api.TranscriptSegment
	var cur []wordInfo
	flush := func() {
		if len(cur) == 0 {
			return
		}
		res = append(res, newSegment(speaker, cur))
		cur = nil
	}
	for _, w := range words {
		if len(cur) > 0 && w.Start-cur[len(cur)-1].End > maxWordGapSec {
			flush()
		}
		cur = append(cur, w)
	}
	flush()
	return res
}

func newSegment(speaker int, words []wordInfo) api.TranscriptSegment {
	texts := make([]string, 0, len(words))
	for _, w := range words {
		texts = append(texts, w.Word)
	}
	return api.TranscriptSegment{
		Speaker:    speaker,
		Start:      words[0].Start,
		End:        words[len(words)-1].End,
		Content:    strings.Join(texts, " "),
		Confidence: meanConfidence(words, 0),
	}
}

// meanConfidence averages available word confidences, falling back
// to the provided alternative-level value when none exist
func meanConfidence(words []wordInfo, fallback float64) float64 {
	sum, n := 0.0, 0
	for _, w := range words {
		if w.Confidence != nil {
			sum += *w.Confidence
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}

// buildBatchSegments converts batch results into segments. With word timing
// the bounds come from the first/last word, without it a speaking-rate
// heuristic places segments one after another
func buildBatchSegments(results []recognitionResult) []api.TranscriptSegment {
	var res []api.TranscriptSegment
	prevEnd := 0.0
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		var seg api.TranscriptSegment
		if len(alt.Words) > 0 {
			seg = api.TranscriptSegment{
				Speaker:    defaultSpeakerID,
				Start:      alt.Words[0].Start,
				End:        alt.Words[len(alt.Words)-1].End,
				Content:    text,
				Confidence: meanConfidence(alt.Words, alt.Confidence),
			}
		} else {
			duration := float64(len(strings.Fields(text))) / wordsPerSecond
			if duration < minSegmentSec {
				duration = minSegmentSec
			}
			start := 0.0
			if len(res) > 0 {
				start = prevEnd + untimedSegmentGap
			}
			seg = api.TranscriptSegment{
				Speaker:    defaultSpeakerID,
				Start:      start,
				End:        start + duration,
				Content:    text,
				Confidence: alt.Confidence,
			}
		}
		prevEnd = seg.End
		res = append(res, seg)
	}
	return res
}

func maxEnd(segs []api.TranscriptSegment) float64 {
	res := 0.0
	for _, s := range segs {
		if s.End > res {
			res = s.End
		}
	}
	return res
}
