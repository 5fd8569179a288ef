package consul

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/google"
)

const (
	recognizeKey = "recognizeURL"
	batchKey     = "batchURL"
	operationKey = "operationURL"
	isHTTPSSLKey = "HTTPSSL"
	priorityKey  = "priority"
)

// Provider discovers recognizer endpoints registered in consul
type Provider struct {
	consul  *api.Client
	srvName string

	lock *sync.RWMutex
	eps  []*epWrap
}

type epWrap struct {
	endpoints google.Endpoints
	srv       string
	priority  float64
}

// NewProvider creates consul backed endpoint provider
func NewProvider(cfg *api.Config, srvNameInConsul string) (*Provider, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if srvNameInConsul == "" {
		return nil, fmt.Errorf("no srv name")
	}
	return newProvider(c, srvNameInConsul), nil
}

func newProvider(c *api.Client, srvNameInConsul string) *Provider {
	goapp.Log.Info().Str("service", srvNameInConsul).Msg("cfg: srv name in consul")
	return &Provider{consul: c, srvName: srvNameInConsul, lock: &sync.RWMutex{}, eps: make([]*epWrap, 0)}
}

// Endpoints returns one discovered endpoint set selected by priority
func (c *Provider) Endpoints() (*google.Endpoints, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if len(c.eps) == 0 {
		return nil, fmt.Errorf("no active recognizer in consul")
	}
	if len(c.eps) == 1 {
		res := c.eps[0].endpoints
		return &res, nil
	}
	i, err := getRandomByPriority(c.eps)
	if err != nil {
		return nil, fmt.Errorf("can't select recognizer: %v", err)
	}
	if i < len(c.eps) {
		res := c.eps[i].endpoints
		return &res, nil
	}
	return nil, fmt.Errorf("no recognizer selected")
}

func getRandomByPriority(eps []*epWrap) (int, error) {
	prMax := 0.0
	for _, e := range eps {
		prMax += e.priority
	}
	if prMax < 0.1 {
		return 0, fmt.Errorf("wrong priority sum found %f", prMax)
	}
	rnd := rand.Float64() * prMax
	prMax = 0.0
	for i, e := range eps {
		prMax += e.priority
		if prMax > rnd {
			return i, nil
		}
	}
	return len(eps), nil
}

// StartRegistryLoop starts periodic consul checks
func (c *Provider) StartRegistryLoop(ctx context.Context, checkInterval time.Duration) (<-chan struct{}, error) {
	goapp.Log.Info().Msgf("Starting consul service check every %v", checkInterval)
	res := make(chan struct{}, 2)
	go func() {
		defer close(res)
		c.serviceLoop(ctx, checkInterval)
	}()
	return res, nil
}

func (c *Provider) serviceLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	// run on startup
	if err := c.check(ctx); err != nil {
		goapp.Log.Error().Err(err).Send()
	}
	for {
		select {
		case <-ticker.C:
			if err := c.check(ctx); err != nil {
				goapp.Log.Error().Err(err).Send()
			}
		case <-ctx.Done():
			ticker.Stop()
			goapp.Log.Info().Msgf("Stopped consul timer service")
			return
		}
	}
}

func (c *Provider) check(ctx context.Context) error {
	ctxInt, cf := context.WithTimeout(ctx, time.Second*5)
	defer cf()
	srvs, _, err := c.consul.Health().Service(c.srvName, "", true, (&api.QueryOptions{}).WithContext(ctxInt))
	if err != nil {
		return fmt.Errorf("can't invoke consul: %v", err)
	}
	return c.updateSrv(srvs)
}

func (c *Provider) updateSrv(srvs []*api.ServiceEntry) error {
	goapp.Log.Info().Msgf("got %d services from consul", len(srvs))
	c.lock.Lock()
	defer c.lock.Unlock()
	res := make([]*epWrap, 0, len(srvs))
	var err error
	for _, s := range srvs {
		ep, errInt := newEndpoints(s)
		if errInt != nil {
			err = multierr.Append(err, errInt)
			continue
		}
		res = append(res, ep)
	}
	c.eps = res
	return err
}

func newEndpoints(s *api.ServiceEntry) (*epWrap, error) {
	srv := key(s)
	ep := google.Endpoints{RecognizeURL: getURL(s, recognizeKey), BatchURL: getURL(s, batchKey),
		OperationURL: getURL(s, operationKey)}
	if ep.RecognizeURL == "" || ep.BatchURL == "" || ep.OperationURL == "" {
		return nil, fmt.Errorf("missing url meta for %s", srv)
	}
	priority, err := getPriority(s)
	if err != nil {
		return nil, fmt.Errorf("can't init recognizer for %s: %v", srv, err)
	}
	goapp.Log.Info().Str("service", srv).Float64("priority", priority).Msg("added recognizer")
	return &epWrap{endpoints: ep, srv: srv, priority: priority}, nil
}

func getPriority(s *api.ServiceEntry) (float64, error) {
	v, ok := s.Service.Meta[priorityKey]
	if !ok {
		return 1, nil
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse priority '%s': %v", v, err)
	}
	if res < 0.5 || res > 50 {
		return 0, fmt.Errorf("wrong priority value '%f', not in [0.5, 50]", res)
	}
	return res, nil
}

func getURL(s *api.ServiceEntry, key string) string {
	v, ok := s.Service.Meta[key]
	if !ok {
		return ""
	}
	ssl := ""
	if isSSL, ok := s.Service.Meta[isHTTPSSLKey]; ok {
		if boolValue, err := strconv.ParseBool(isSSL); err == nil && boolValue {
			ssl = "s"
		}
	}
	return fmt.Sprintf("http%s://%s:%d/%s", ssl, s.Service.Address, s.Service.Port, v)
}

func key(s *api.ServiceEntry) string {
	return fmt.Sprintf("%s:%d", s.Service.Address, s.Service.Port)
}
