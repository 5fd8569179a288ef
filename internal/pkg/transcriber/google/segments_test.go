package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
)

func fl(v float64) *float64 { return &v }

func Test_reconstructDiarized(t *testing.T) {
	words := []wordInfo{
		{Word: "hello", Start: 0, End: 0.5, Speaker: 1, Confidence: fl(0.9)},
		{Word: "there", Start: 0.6, End: 1.0, Speaker: 1, Confidence: fl(0.7)},
		{Word: "hi", Start: 1.2, End: 1.5, Speaker: 2, Confidence: fl(0.8)},
	}
	segs := reconstructDiarized(words)
	require.Equal(t, 2, len(segs))
	assert.Equal(t, 1, segs[0].Speaker)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 1.0, segs[0].End)
	assert.Equal(t, "hello there", segs[0].Content)
	assert.InDelta(t, 0.8, segs[0].Confidence, 0.0001)
	assert.Equal(t, 2, segs[1].Speaker)
	assert.Equal(t, "hi", segs[1].Content)
	assert.InDelta(t, 0.8, segs[1].Confidence, 0.0001)
}

func Test_reconstructDiarized_SplitsOnGap(t *testing.T) {
	words := []wordInfo{
		{Word: "one", Start: 0, End: 0.5, Speaker: 1},
		{Word: "two", Start: 1.0, End: 1.5, Speaker: 1},
		// silence longer than 2s starts a new segment
		{Word: "three", Start: 4.0, End: 4.5, Speaker: 1},
	}
	segs := reconstructDiarized(words)
	require.Equal(t, 2, len(segs))
	assert.Equal(t, "one two", segs[0].Content)
	assert.Equal(t, 1.5, segs[0].End)
	assert.Equal(t, "three", segs[1].Content)
	assert.Equal(t, 4.0, segs[1].Start)
}

func Test_reconstructDiarized_KeepsGapWithinLimit(t *testing.T) {
	words := []wordInfo{
		{Word: "one", Start: 0, End: 0.5, Speaker: 1},
		{Word: "two", Start: 2.5, End: 3.0, Speaker: 1},
	}
	segs := reconstructDiarized(words)
	require.Equal(t, 1, len(segs))
	assert.Equal(t, "one two", segs[0].Content)
}

func Test_reconstructDiarized_SortsByStart(t *testing.T) {
	words := []wordInfo{
		{Word: "later", Start: 5.0, End: 5.5, Speaker: 2},
		{Word: "first", Start: 0, End: 0.5, Speaker: 1},
	}
	segs := reconstructDiarized(words)
	require.Equal(t, 2, len(segs))
	assert.Equal(t, "first", segs[0].Content)
	assert.Equal(t, "later", segs[1].Content)
}

func Test_reconstructDiarized_Empty(t *testing.T) {
	assert.Empty(t, reconstructDiarized(nil))
}

func Test_buildBatchSegments_WithWordTiming(t *testing.T) {
	results := []recognitionResult{
		{Alternatives: []alternative{{Transcript: "hello there", Confidence: 0.9,
			Words: []wordInfo{{Word: "hello", Start: 0.2, End: 0.7}, {Word: "there", Start: 0.8, End: 1.2}}}}},
	}
	segs := buildBatchSegments(results)
	require.Equal(t, 1, len(segs))
	assert.Equal(t, 0.2, segs[0].Start)
	assert.Equal(t, 1.2, segs[0].End)
	assert.Equal(t, defaultSpeakerID, segs[0].Speaker)
	assert.Equal(t, 0.9, segs[0].Confidence)
}

func Test_buildBatchSegments_SpeakingRateHeuristic(t *testing.T) {
	// 12 words at 2.5 words/s make a 4.8s segment starting at zero
	results := []recognitionResult{
		{Alternatives: []alternative{{Transcript: "a b c d e f g h i j k l", Confidence: 0.8}}},
	}
	segs := buildBatchSegments(results)
	require.Equal(t, 1, len(segs))
	assert.Equal(t, 0.0, segs[0].Start)
	assert.InDelta(t, 4.8, segs[0].End, 0.0001)
}

func Test_buildBatchSegments_MinDuration(t *testing.T) {
	results := []recognitionResult{
		{Alternatives: []alternative{{Transcript: "hi", Confidence: 0.8}}},
	}
	segs := buildBatchSegments(results)
	require.Equal(t, 1, len(segs))
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 1.0, segs[0].End)
}

func Test_buildBatchSegments_SequentialPlacement(t *testing.T) {
	results := []recognitionResult{
		{Alternatives: []alternative{{Transcript: "a b c d e", Confidence: 0.8}}},
		{Alternatives: []alternative{{Transcript: "f g h i j", Confidence: 0.8}}},
	}
	segs := buildBatchSegments(results)
	require.Equal(t, 2, len(segs))
	assert.Equal(t, 0.0, segs[0].Start)
	assert.InDelta(t, 2.0, segs[0].End, 0.0001)
	assert.InDelta(t, 2.5, segs[1].Start, 0.0001)
	assert.InDelta(t, 4.5, segs[1].End, 0.0001)
}

func Test_buildBatchSegments_SkipsEmpty(t *testing.T) {
	results := []recognitionResult{
		{Alternatives: []alternative{{Transcript: "  ", Confidence: 0.8}}},
		{},
		{Alternatives: []alternative{{Transcript: "hello", Confidence: 0.8}}},
	}
	segs := buildBatchSegments(results)
	require.Equal(t, 1, len(segs))
	assert.Equal(t, "hello", segs[0].Content)
}

func Test_meanConfidence(t *testing.T) {
	assert.Equal(t, 0.5, meanConfidence([]wordInfo{{Confidence: fl(0.4)}, {Confidence: fl(0.6)}}, 0.9))
	assert.Equal(t, 0.9, meanConfidence([]wordInfo{{}, {}}, 0.9))
	assert.Equal(t, 0.4, meanConfidence([]wordInfo{{Confidence: fl(0.4)}, {}}, 0.9))
}

func Test_maxEnd(t *testing.T) {
	assert.Equal(t, 0.0, maxEnd(nil))
	assert.Equal(t, 5.5, maxEnd([]api.TranscriptSegment{{End: 2}, {End: 5.5}, {End: 1}}))
}
