package persistence

import (
	"database/sql"
	"time"
)

type (

	// Session table - one transcription job per row
	Session struct {
		ID               string
		UserID           string
		Email            sql.NullString
		AudioKey         string
		OriginalFilename string
		Language         string
		Diarization      bool
		MinSpeakers      int
		MaxSpeakers      int
		Provider         sql.NullString
		Status           string
		Error            sql.NullString
		Cost             sql.NullFloat64
		Duration         sql.NullFloat64
		Metadata         map[string]string
		RequestID        string
		Created          time.Time
		Updated          time.Time
	}

	// Status - the single mutable progress record per session,
	// the worker owning the job is the only writer
	Status struct {
		ID                  string
		Status              string
		Progress            sql.NullInt32
		Message             sql.NullString
		Error               sql.NullString
		ErrorCode           sql.NullString
		DurationProcessed   sql.NullFloat64
		DurationTotal       sql.NullFloat64
		Started             sql.NullTime
		EstimatedCompletion sql.NullTime
		Speed               sql.NullFloat64
		Version             int32
		Created             time.Time
		Updated             time.Time
	}

	// Segment table - one recognized utterance, immutable once written
	Segment struct {
		SessionID  string
		Speaker    int
		Start      float64
		End        float64
		Content    string
		Confidence float64
		Created    time.Time
	}

	// UsageRecord - append-only cost/duration ledger entry
	UsageRecord struct {
		ID        string
		SessionID string
		UserID    string
		Provider  string
		Duration  float64
		Cost      float64
		Created   time.Time
	}
)
