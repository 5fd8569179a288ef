package api

import (
	"context"
	"sort"
)

// ProgressFunc receives recognition progress in [0, 100] and a human readable message.
// It is called synchronously from the recognition loop and must not block
type ProgressFunc func(progress int, message string)

// TranscribeInput keeps parameters for one recognition call
type TranscribeInput struct {
	AudioKey         string
	Language         string
	Diarization      bool
	MinSpeakers      int
	MaxSpeakers      int
	OriginalFilename string
	Progress         ProgressFunc
}

// TranscriptSegment is one recognized utterance
type TranscriptSegment struct {
	Speaker    int
	Start      float64
	End        float64
	Content    string
	Confidence float64
}

// Duration returns segment length in seconds
func (s *TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

// TranscriptionResult keeps segments of one successful recognition call
type TranscriptionResult struct {
	Segments      []TranscriptSegment
	TotalDuration float64
	Language      string
	Cost          float64
	Metadata      map[string]string
}

// SortSegments orders segments by start time ascending
func SortSegments(segs []TranscriptSegment) {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
}

// Transcriber is the capability contract any recognition backend implements
type Transcriber interface {
	Transcribe(ctx context.Context, input *TranscribeInput) (*TranscriptionResult, error)
	EstimateCost(durationSec float64) float64
	Name() string
}

// OpState is the outcome of one long-running-operation poll.
// It replaces error-text matching for the pending/done decision
type OpState int

const (
	// OpPending - operation still running, keep polling
	OpPending OpState = iota
	// OpDone - operation finished successfully
	OpDone
	// OpError - operation failed, do not poll again
	OpError
)
