package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProber checks reachability with HEAD requests against a list of
// endpoints. The first endpoint that answers with any HTTP status counts as
// success; a reachability probe cares about the link, not the status code.
type HTTPProber struct {
	endpoints []string
	client    *http.Client
}

func NewHTTPProber(endpoints []string, timeout time.Duration) (*HTTPProber, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one probe endpoint is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (p *HTTPProber) Probe(ctx context.Context) (time.Duration, error) {
	if p == nil || len(p.endpoints) == 0 {
		return 0, fmt.Errorf("prober is not configured")
	}

	started := time.Now()
	var lastErr error
	for _, endpoint := range p.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			lastErr = fmt.Errorf("build probe request for %s: %w", endpoint, err)
			continue
		}
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("probe %s: %w", endpoint, err)
			continue
		}
		_ = resp.Body.Close()
		return time.Since(started), nil
	}
	return time.Since(started), lastErr
}
