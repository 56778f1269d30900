package main

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/klauspost/compress/gzhttp"
)

func newHttpClient() *http.Client {
	return &http.Client{
		Timeout:   time.Minute,
		Transport: newHttpTransport(),
	}
}

func newHttpTransport() http.RoundTripper {
	return newAddUserAgentTransport(
		gzhttp.Transport(
			&http.Transport{
				// Default
				Proxy:                 http.ProxyFromEnvironment,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				// Custom
				DisableKeepAlives: true,
			},
		),
	)
}

type addUserAgentTransport struct {
	parent http.RoundTripper
}

func (t *addUserAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Set("User-Agent", appUserAgent)
	return t.parent.RoundTrip(r)
}

func newAddUserAgentTransport(parent http.RoundTripper) *addUserAgentTransport {
	return &addUserAgentTransport{parent}
}

// initFeedClient sets up the HTTP client used for feed polling. Responses
// get cached for the configured expiration so overlapping poll cycles
// don't refetch identical feed bodies.
func (a *goSocial) initFeedClient() {
	a.feedClientInit.Do(func() {
		if a.cfg.Cache == nil || !a.cfg.Cache.Enable {
			a.feedClient = a.httpClient
			return
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 100,
			MaxCost:     10,
			BufferItems: 64,
		})
		if err != nil {
			a.error("Failed to init feed cache", "err", err)
			a.feedClient = a.httpClient
			return
		}
		a.shutdown.Add(cache.Close)
		a.feedClient = &http.Client{
			Timeout: time.Minute,
			Transport: &cachedFeedTransport{
				parent: newHttpTransport(),
				cache:  cache,
				ttl:    time.Duration(a.cfg.Cache.Expiration) * time.Second,
			},
		}
	})
}

type cachedFeedTransport struct {
	parent http.RoundTripper
	cache  *ristretto.Cache
	ttl    time.Duration
}

func (t *cachedFeedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	feedURL := r.URL.String()
	if cached, ok := t.cache.Get(feedURL); ok {
		if body, ok := cached.([]byte); ok {
			return http.ReadResponse(bufio.NewReader(bytes.NewReader(body)), r)
		}
	}
	resp, err := t.parent.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	respBytes, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return resp, err
	}
	t.cache.SetWithTTL(feedURL, respBytes, 1, t.ttl)
	t.cache.Wait()
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(respBytes)), r)
}
