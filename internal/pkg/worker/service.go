package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/vgarvardt/gue/v5"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/messages"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/persistence"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/postgres"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/status"
	tapi "github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/utils"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides persistence functionality
type DB interface {
	LoadSession(ctx context.Context, id string) (*persistence.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, st status.Status) error
	InsertStatus(ctx context.Context, item *persistence.Status) error
	LoadStatus(ctx context.Context, id string) (*persistence.Status, error)
	UpdateStatus(ctx context.Context, item *persistence.Status) error
	InsertSegments(ctx context.Context, sessionID string, segs []persistence.Segment) error
	CountSegments(ctx context.Context, sessionID string) (int, error)
	CompleteSession(ctx context.Context, id string, cost, duration float64, metadata map[string]string) error
	FailSession(ctx context.Context, id, errMsg string, errCode status.ErrCode) error
	InsertUsage(ctx context.Context, item *persistence.UsageRecord) error
}

// TranscriberProvider resolves provider names to adapters
type TranscriberProvider interface {
	Get(name string) (tapi.Transcriber, error)
	Primary() string
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Provider    TranscriberProvider
	Testing     bool
}

const (
	wrkTranscribe = "wrk-transcribe"

	// adapter progress is rescaled into this band, setup owns 0-25,
	// persistence/finalization owns 75-100
	bandLow  = 25
	bandHigh = 75
)

// StartWorkerService starts the event queue listener service to listen for transcription jobs
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		wrkTranscribe: handler.Create(data, handleTranscribe,
			handler.DefaultOpts[messages.TranscribeMessage]().
				WithTimeout(time.Minute*125).
				WithPolicy(transcribePolicy(data.Testing)).
				WithFailure(failTranscribe(data))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Work),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("transcribe-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// transcribePolicy retries transient failures with 60s×2^attempt backoff.
// Quota, invalid audio, configuration, timeout and integrity violations
// never go back to the queue
func transcribePolicy(test bool) handler.RetryPolicy {
	return handler.RetryPolicy{
		MaxAttempts: 3,
		Backoff:     handler.BackoffOrTest(handler.ExpBackoff(time.Minute), test),
		Retryable: func(err error) bool {
			return tapi.IsTransient(err) && !postgres.IsIntegrityViolation(err)
		},
	}
}

func handleTranscribe(ctx context.Context, m *messages.TranscribeMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling transcription")
	startTime := time.Now()
	ses, err := data.DB.LoadSession(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load session: %w", err)
	}
	switch status.From(ses.Status) {
	case status.Completed:
		goapp.Log.Info().Str("ID", m.ID).Msg("already completed - skip")
		return nil
	case status.Cancelled:
		goapp.Log.Info().Str("ID", m.ID).Msg("cancelled - skip")
		return nil
	case status.Failed:
		goapp.Log.Info().Str("ID", m.ID).Msg("already failed - skip")
		return nil
	}
	err = data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeStarted, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	if err := data.DB.UpdateSessionStatus(ctx, m.ID, status.Processing); err != nil {
		return fmt.Errorf("can't update session: %w", err)
	}
	if err := ensureStatus(ctx, m.ID, data); err != nil {
		return fmt.Errorf("can't init status: %w", err)
	}
	notifyStatusChange(ctx, m.ID, data)

	name := utils.FromSQLStr(ses.Provider)
	tr, err := data.Provider.Get(name)
	if err != nil {
		if name == "" || name == data.Provider.Primary() {
			return fmt.Errorf("can't init provider: %w", err)
		}
		goapp.Log.Warn().Err(err).Str("provider", name).Msg("can't init requested provider - falling back to primary")
		tr, err = data.Provider.Get(data.Provider.Primary())
		if err != nil {
			return fmt.Errorf("can't init provider: %w", err)
		}
	}
	if err := updateProgress(ctx, data, m.ID, bandLow, "Connection established to "+tr.Name()); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", m.ID).Msg("can't persist progress")
	}

	input := newInput(ses, m)
	input.Progress = func(p int, msg string) {
		if err := updateProgress(ctx, data, m.ID, mapProgress(p), msg); err != nil {
			// best effort, a failed progress write never aborts the job
			goapp.Log.Warn().Err(err).Str("ID", m.ID).Msg("can't persist progress")
		}
	}
	res, err := tr.Transcribe(ctx, input)
	if err != nil && tr.Name() != data.Provider.Primary() && tapi.IsServerError(err) {
		goapp.Log.Warn().Err(err).Str("provider", tr.Name()).Msg("provider server error - retrying with primary")
		trP, errP := data.Provider.Get(data.Provider.Primary())
		if errP != nil {
			goapp.Log.Error().Err(errP).Msg("can't init primary provider")
		} else {
			tr = trP
			if errU := updateProgress(ctx, data, m.ID, bandLow, "Connection established to "+tr.Name()); errU != nil {
				goapp.Log.Warn().Err(errU).Str("ID", m.ID).Msg("can't persist progress")
			}
			res, err = tr.Transcribe(ctx, input)
		}
	}
	if err != nil {
		return fmt.Errorf("can't transcribe: %w", err)
	}

	if err := updateProgress(ctx, data, m.ID, 80, "Saving transcript"); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", m.ID).Msg("can't persist progress")
	}
	count, err := data.DB.CountSegments(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't check segments: %w", err)
	}
	if count == 0 {
		if err := data.DB.InsertSegments(ctx, m.ID, mapSegments(m.ID, res.Segments)); err != nil {
			return fmt.Errorf("can't save segments: %w", err)
		}
	} else {
		goapp.Log.Info().Str("ID", m.ID).Int("count", count).Msg("segments exist - skip insert")
	}
	cost := roundCost(res.Cost)
	if err := data.DB.CompleteSession(ctx, m.ID, cost, res.TotalDuration, res.Metadata); err != nil {
		return fmt.Errorf("can't complete session: %w", err)
	}
	if err := data.DB.InsertUsage(ctx, &persistence.UsageRecord{ID: uuid.NewString(), SessionID: m.ID,
		UserID: ses.UserID, Provider: tr.Name(), Duration: res.TotalDuration, Cost: cost}); err != nil {
		// the session is already completed, a retry would skip this write anyway
		goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("can't save usage record")
	}
	notifyStatusChange(ctx, m.ID, data)
	if err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeFinished, At: time.Now()}, messages.Inform); err != nil {
		goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("can't send inform msg")
	}
	goapp.Log.Info().Str("ID", m.ID).Int("segments", len(res.Segments)).
		Float64("duration", res.TotalDuration).Float64("cost", cost).
		Str("language", res.Language).Dur("processingTime", time.Since(startTime)).
		Msg("Transcription completed")
	return nil
}

// failTranscribe writes the terminal failure to both session and status
// records within one transaction
func failTranscribe(data *ServiceData) func(context.Context, *messages.TranscribeMessage, error) error {
	return func(ctx context.Context, m *messages.TranscribeMessage, err error) error {
		goapp.Log.Info().Str("ID", m.ID).Msg("handling failure")
		code := status.ErrCode(tapi.Code(err))
		if errF := data.DB.FailSession(ctx, m.ID, userMessage(err), code); errF != nil {
			return fmt.Errorf("can't mark session failed: %w", errF)
		}
		notifyStatusChange(ctx, m.ID, data)
		if errS := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
			QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
			Type:         amessages.InformTypeFailed, At: time.Now()}, messages.Inform); errS != nil {
			goapp.Log.Error().Err(errS).Str("ID", m.ID).Msg("can't send inform msg")
		}
		return nil
	}
}

// userMessage maps the failure class to a human readable summary,
// provider native errors never escape past this point
func userMessage(err error) string {
	switch status.ErrCode(tapi.Code(err)) {
	case status.ECQuota:
		return "Transcription quota exceeded. Please try again later."
	case status.ECInvalidAudio:
		return "The audio file could not be processed. Please check the format and upload again."
	case status.ECConfiguration:
		return "Transcription is not configured for this request. Please contact support."
	case status.ECTimeout:
		return "Transcription timed out. Please try again with a shorter recording."
	case status.ECNotFound:
		return "Transcription results were not produced in time. Please try again."
	}
	return "Transcription failed due to a temporary service problem. Please try again."
}

// ensureStatus creates or resets the single status row for a new attempt.
// An explicit retry is the one place progress may go down
func ensureStatus(ctx context.Context, id string, data *ServiceData) error {
	st, err := data.DB.LoadStatus(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	if st == nil {
		return data.DB.InsertStatus(ctx, &persistence.Status{ID: id,
			Status:   status.Processing.String(),
			Progress: utils.ToSQLInt32(5),
			Message:  utils.ToSQLStr("Preparing audio"),
			Started:  utils.ToSQLTime(now)})
	}
	st.Status = status.Processing.String()
	st.Progress = utils.ToSQLInt32(5)
	st.Message = utils.ToSQLStr("Preparing audio")
	st.Error = utils.ToSQLStr("")
	st.ErrorCode = utils.ToSQLStr("")
	st.Started = utils.ToSQLTime(now)
	return data.DB.UpdateStatus(ctx, st)
}

// updateProgress re-reads the status row before mutating so decisions
// never rely on in-memory state from before a suspension point.
// Lower values are dropped to keep progress monotone within an attempt
func updateProgress(ctx context.Context, data *ServiceData, id string, progress int32, msg string) error {
	st, err := data.DB.LoadStatus(ctx, id)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("no status record for %s", id)
	}
	if st.Progress.Valid && progress < st.Progress.Int32 {
		return nil
	}
	st.Status = status.Processing.String()
	st.Progress = utils.ToSQLInt32(progress)
	st.Message = utils.ToSQLStr(msg)
	if st.Started.Valid && progress > 0 {
		elapsed := time.Since(st.Started.Time)
		st.EstimatedCompletion = utils.ToSQLTime(st.Started.Time.Add(
			time.Duration(float64(elapsed) * 100 / float64(progress))))
		if st.DurationTotal.Valid && elapsed > 0 {
			st.DurationProcessed = utils.ToSQLFloat(st.DurationTotal.Float64 * float64(progress) / 100)
			st.Speed = utils.ToSQLFloat(st.DurationProcessed.Float64 / elapsed.Seconds())
		}
	}
	return data.DB.UpdateStatus(ctx, st)
}

func notifyStatusChange(ctx context.Context, id string, data *ServiceData) {
	err := data.MsgSender.SendMessage(ctx, &messages.TranscribeMessage{
		QueueMessage: amessages.QueueMessage{ID: id}}, messages.StatusChange)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send status change msg")
	}
}

// mapProgress rescales adapter progress 0-100 into the job's band
func mapProgress(p int) int32 {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return int32(bandLow + p*(bandHigh-bandLow)/100)
}

// roundCost rounds half-up to 6 decimal places
func roundCost(c float64) float64 {
	return math.Round(c*1e6) / 1e6
}

func newInput(ses *persistence.Session, m *messages.TranscribeMessage) *tapi.TranscribeInput {
	res := &tapi.TranscribeInput{AudioKey: ses.AudioKey, Language: ses.Language,
		Diarization: ses.Diarization, MinSpeakers: ses.MinSpeakers, MaxSpeakers: ses.MaxSpeakers,
		OriginalFilename: ses.OriginalFilename}
	if res.AudioKey == "" {
		res.AudioKey = m.AudioKey
	}
	if res.Language == "" {
		res.Language = m.Language
	}
	if res.OriginalFilename == "" {
		res.OriginalFilename = m.OriginalFilename
	}
	return res
}

func mapSegments(sessionID string, segs []tapi.TranscriptSegment) []persistence.Segment {
	res := make([]persistence.Segment, 0, len(segs))
	for _, s := range segs {
		res = append(res, persistence.Segment{SessionID: sessionID, Speaker: s.Speaker,
			Start: s.Start, End: s.End, Content: s.Content, Confidence: s.Confidence})
	}
	return res
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Provider == nil {
		return fmt.Errorf("no transcriber provider")
	}
	return nil
}
