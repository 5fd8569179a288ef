package consul

import (
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(port int, meta map[string]string) *api.ServiceEntry {
	return &api.ServiceEntry{Service: &api.AgentService{Service: "recognizer", Port: port,
		Address: "srv", Meta: meta}}
}

func fullMeta() map[string]string {
	return map[string]string{recognizeKey: "recognize", batchKey: "batchRecognize",
		operationKey: "operations"}
}

func Test_Endpoints_empty(t *testing.T) {
	p := newProvider(nil, "recognizer")
	ep, err := p.Endpoints()
	assert.Nil(t, ep)
	assert.NotNil(t, err)
}

func Test_Endpoints_single(t *testing.T) {
	p := newProvider(nil, "recognizer")
	require.Nil(t, p.updateSrv([]*api.ServiceEntry{testEntry(80, fullMeta())}))
	ep, err := p.Endpoints()
	require.Nil(t, err)
	assert.Equal(t, "http://srv:80/recognize", ep.RecognizeURL)
	assert.Equal(t, "http://srv:80/batchRecognize", ep.BatchURL)
	assert.Equal(t, "http://srv:80/operations", ep.OperationURL)
}

func Test_Endpoints_several(t *testing.T) {
	p := newProvider(nil, "recognizer")
	require.Nil(t, p.updateSrv([]*api.ServiceEntry{testEntry(80, fullMeta()), testEntry(81, fullMeta())}))
	for i := 0; i < 20; i++ {
		ep, err := p.Endpoints()
		require.Nil(t, err)
		assert.Contains(t, []string{"http://srv:80/recognize", "http://srv:81/recognize"}, ep.RecognizeURL)
	}
}

func TestProvider_updateSrv_no_meta(t *testing.T) {
	p := newProvider(nil, "recognizer")
	err := p.updateSrv([]*api.ServiceEntry{testEntry(80, map[string]string{})})
	assert.NotNil(t, err)
	assert.Equal(t, 0, len(p.eps))
}

func TestProvider_updateSrv_partial_meta(t *testing.T) {
	p := newProvider(nil, "recognizer")
	err := p.updateSrv([]*api.ServiceEntry{testEntry(80, map[string]string{recognizeKey: "recognize"})})
	assert.NotNil(t, err)
	assert.Equal(t, 0, len(p.eps))
}

func TestProvider_updateSrv_adds(t *testing.T) {
	p := newProvider(nil, "recognizer")
	err := p.updateSrv([]*api.ServiceEntry{testEntry(80, fullMeta())})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.eps))
}

func TestProvider_updateSrv_keepsGoodOnPartialFailure(t *testing.T) {
	p := newProvider(nil, "recognizer")
	err := p.updateSrv([]*api.ServiceEntry{testEntry(80, fullMeta()), testEntry(81, map[string]string{})})
	assert.NotNil(t, err)
	assert.Equal(t, 1, len(p.eps))
}

func TestProvider_updateSrv_drops(t *testing.T) {
	p := newProvider(nil, "recognizer")
	require.Nil(t, p.updateSrv([]*api.ServiceEntry{testEntry(80, fullMeta()), testEntry(81, fullMeta())}))
	assert.Equal(t, 2, len(p.eps))
	require.Nil(t, p.updateSrv([]*api.ServiceEntry{testEntry(80, fullMeta())}))
	assert.Equal(t, 1, len(p.eps))
}

func TestProvider_ssl_meta(t *testing.T) {
	p := newProvider(nil, "recognizer")
	meta := fullMeta()
	meta[isHTTPSSLKey] = "true"
	require.Nil(t, p.updateSrv([]*api.ServiceEntry{testEntry(443, meta)}))
	ep, err := p.Endpoints()
	require.Nil(t, err)
	assert.Equal(t, "https://srv:443/recognize", ep.RecognizeURL)
}

func Test_getPriority(t *testing.T) {
	tests := []struct {
		name    string
		meta    map[string]string
		want    float64
		wantErr bool
	}{
		{name: "default", meta: map[string]string{}, want: 1},
		{name: "set", meta: map[string]string{priorityKey: "2.5"}, want: 2.5},
		{name: "too small", meta: map[string]string{priorityKey: "0.4"}, wantErr: true},
		{name: "too big", meta: map[string]string{priorityKey: "51"}, wantErr: true},
		{name: "not a number", meta: map[string]string{priorityKey: "olia"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getPriority(testEntry(80, tt.meta))
			if tt.wantErr {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_getRandomByPriority(t *testing.T) {
	eps := []*epWrap{{priority: 1}, {priority: 1}}
	counts := map[int]int{}
	for i := 0; i < 100; i++ {
		i, err := getRandomByPriority(eps)
		require.Nil(t, err)
		counts[i]++
	}
	assert.True(t, counts[0] > 0)
	assert.True(t, counts[1] > 0)

	_, err := getRandomByPriority([]*epWrap{{priority: 0}})
	assert.NotNil(t, err)
}
