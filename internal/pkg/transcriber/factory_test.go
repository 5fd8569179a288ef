package transcriber

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/test/mocks"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/google"
)

func testProviders() map[string]ProviderConfig {
	eps := google.Endpoints{RecognizeURL: "http://r", BatchURL: "http://b", OperationURL: "http://o"}
	return map[string]ProviderConfig{
		"google":    {Endpoints: eps},
		"google-eu": {Endpoints: eps, DisableDiarized: true},
	}
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	assert.Equal(t, "google", f.Primary())
}

func TestNewFactory_Fails(t *testing.T) {
	_, err := NewFactory("", testProviders(), &mocks.Filer{})
	assert.NotNil(t, err)
	_, err = NewFactory("olia", testProviders(), &mocks.Filer{})
	assert.NotNil(t, err)
	_, err = NewFactory("google", testProviders(), nil)
	assert.NotNil(t, err)
}

func TestGet(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	tr, err := f.Get("google-eu")
	require.Nil(t, err)
	assert.Equal(t, "google-eu", tr.Name())
}

func TestGet_DefaultAlias(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	tr, err := f.Get("default")
	require.Nil(t, err)
	assert.Equal(t, "google", tr.Name())
	tr, err = f.Get("")
	require.Nil(t, err)
	assert.Equal(t, "google", tr.Name())
}

func TestGet_Unknown(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	_, err = f.Get("whisper")
	require.NotNil(t, err)
	var e *api.ErrConfiguration
	assert.ErrorAs(t, err, &e)
	assert.Contains(t, err.Error(), "whisper")
	assert.Contains(t, err.Error(), "google-eu")
}

func TestGet_FreshInstancePerCall(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	tr1, err := f.Get("google")
	require.Nil(t, err)
	tr2, err := f.Get("google")
	require.Nil(t, err)
	assert.NotSame(t, tr1, tr2)
}

func TestAvailable(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	assert.Equal(t, []string{"google", "google-eu"}, f.Available())
}

type fakeEndpointSource struct {
	eps *google.Endpoints
	err error
}

func (s *fakeEndpointSource) Endpoints() (*google.Endpoints, error) { return s.eps, s.err }

func TestGet_WithEndpointSource(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	f.WithEndpointSource(&fakeEndpointSource{eps: &google.Endpoints{RecognizeURL: "http://d/r",
		BatchURL: "http://d/b", OperationURL: "http://d/o"}})
	tr, err := f.Get("google")
	require.Nil(t, err)
	assert.Equal(t, "google", tr.Name())
}

func TestGet_EndpointSourceFails_UsesStatic(t *testing.T) {
	f, err := NewFactory("google", testProviders(), &mocks.Filer{})
	require.Nil(t, err)
	f.WithEndpointSource(&fakeEndpointSource{err: fmt.Errorf("no consul")})
	tr, err := f.Get("google")
	require.Nil(t, err)
	assert.Equal(t, "google", tr.Name())
}
