package mocks

import (
	"context"
	"io"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/mock"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/persistence"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/status"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	args := m.Called(ctx, name, r, size)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

func (m *Filer) Stat(ctx context.Context, fileName string) (int64, error) {
	args := m.Called(ctx, fileName)
	return To[int64](args.Get(0)), args.Error(1)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) LoadSession(ctx context.Context, id string) (*persistence.Session, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Session](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateSessionStatus(ctx context.Context, id string, st status.Status) error {
	args := m.Called(ctx, id, st)
	return args.Error(0)
}

func (m *DB) InsertStatus(ctx context.Context, item *persistence.Status) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LoadStatus(ctx context.Context, id string) (*persistence.Status, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Status](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateStatus(ctx context.Context, item *persistence.Status) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) InsertSegments(ctx context.Context, sessionID string, segs []persistence.Segment) error {
	args := m.Called(ctx, sessionID, segs)
	return args.Error(0)
}

func (m *DB) CountSegments(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *DB) CompleteSession(ctx context.Context, id string, cost, duration float64, metadata map[string]string) error {
	args := m.Called(ctx, id, cost, duration, metadata)
	return args.Error(0)
}

func (m *DB) FailSession(ctx context.Context, id, errMsg string, errCode status.ErrCode) error {
	args := m.Called(ctx, id, errMsg, errCode)
	return args.Error(0)
}

func (m *DB) InsertUsage(ctx context.Context, item *persistence.UsageRecord) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	args := m.Called(ctx, id, msgType, value)
	return args.Error(0)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Transcriber is recognition adapter mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, input *api.TranscribeInput) (*api.TranscriptionResult, error) {
	args := m.Called(ctx, input)
	return To[*api.TranscriptionResult](args.Get(0)), args.Error(1)
}

func (m *Transcriber) EstimateCost(durationSec float64) float64 {
	args := m.Called(durationSec)
	return To[float64](args.Get(0))
}

func (m *Transcriber) Name() string {
	args := m.Called()
	return args.String(0)
}

// Provider is transcriber factory mock
type Provider struct{ mock.Mock }

func (m *Provider) Get(name string) (api.Transcriber, error) {
	args := m.Called(name)
	return To[api.Transcriber](args.Get(0)), args.Error(1)
}

func (m *Provider) Primary() string {
	args := m.Called()
	return args.String(0)
}

func (m *Provider) Available() []string {
	args := m.Called()
	return To[[]string](args.Get(0))
}

// To casts a recorded mock value, nil safe
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
