// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telraam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
)

// DefaultEndpoint is the versioned root of the public Telraam API.
const DefaultEndpoint = "https://telraam-api.net/v1"

// HTTPClient implements Client over the Telraam REST API. It is stateless
// apart from the token held by its transport, so one value may be shared by
// concurrent callers.
type HTTPClient struct {
	endpoint *url.URL
	http     *http.Client
	now      func() time.Time
}

// Option configures an HTTPClient.
type Option func(*httpOptions)

type httpOptions struct {
	timeout   time.Duration
	userAgent string
	base      http.RoundTripper
}

// WithTimeout bounds each HTTP exchange. Zero disables the client timeout
// and leaves cancellation to the context.
func WithTimeout(d time.Duration) Option {
	return func(o *httpOptions) { o.timeout = d }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(o *httpOptions) { o.userAgent = ua }
}

// WithBaseTransport replaces the underlying round tripper. The auth
// transport still wraps it.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *httpOptions) { o.base = rt }
}

// NewHTTPClient creates a client for the API at endpoint, authenticating
// every request with token.
func NewHTTPClient(token, endpoint string, opts ...Option) (*HTTPClient, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API endpoint %q: scheme must be http or https", endpoint)
	}

	o := httpOptions{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.base
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	return &HTTPClient{
		endpoint: u,
		http: &http.Client{
			Timeout: o.timeout,
			Transport: &authTransport{
				token:     token,
				userAgent: o.userAgent,
				base:      base,
			},
		},
		now: time.Now,
	}, nil
}

// Do issues one request and classifies the outcome. path is relative to
// the endpoint; a nil body sends no payload. The returned JSON is the raw
// response body.
func (c *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u := *c.endpoint
	if path != "" {
		u = *c.endpoint.JoinPath(path)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Method: method, Path: path, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, errResponseTooLarge) {
			return nil, &DecodeError{Field: "$", Err: err}
		}
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	return c.classify(resp, data)
}

// unwrapURLError strips the *url.Error wrapper so the request URL is not
// repeated in messages.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func (c *HTTPClient) classify(resp *http.Response, data []byte) (json.RawMessage, error) {
	retry := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var status Status
		if err := json.Unmarshal(data, &status); err == nil && status.Message != "" {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    status.Message,
				Code:       status.Code,
				Retry:      retry,
			}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Retry: retry}
	}

	if !json.Valid(data) {
		return nil, &DecodeError{Field: "$", Err: errors.New("response body is not valid JSON")}
	}

	// Only objects carry a status block; an array body has none.
	var status Status
	if err := json.Unmarshal(data, &status); err == nil && status.Failed() {
		return nil, &APIError{
			StatusCode: status.StatusCode,
			Message:    status.Message,
			Code:       status.Code,
			Retry:      retry,
		}
	}

	return json.RawMessage(data), nil
}

// Welcome implements Client.
func (c *HTTPClient) Welcome(ctx context.Context) (Status, error) {
	data, err := c.Do(ctx, http.MethodGet, "", nil, nil)
	if err != nil {
		return Status{}, err
	}
	return DecodeWelcome(data)
}

// Traffic implements Client.
func (c *HTTPClient) Traffic(ctx context.Context, req TrafficRequest) ([]Report, error) {
	if err := req.Range().Validate(); err != nil {
		return nil, err
	}
	data, err := c.Do(ctx, http.MethodPost, "reports/traffic", nil, req)
	if err != nil {
		return nil, err
	}
	return DecodeTraffic(data)
}

// TrafficSnapshotLive implements Client.
func (c *HTTPClient) TrafficSnapshotLive(ctx context.Context) (*SnapshotSet, error) {
	data, err := c.Do(ctx, http.MethodGet, "reports/traffic_snapshot_live", nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data)
}

// Cameras implements Client.
func (c *HTTPClient) Cameras(ctx context.Context) ([]Camera, error) {
	data, err := c.Do(ctx, http.MethodGet, "cameras", nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeCameras(data)
}

// CamerasBySegment implements Client.
func (c *HTTPClient) CamerasBySegment(ctx context.Context, segmentID string) ([]Camera, error) {
	data, err := c.Do(ctx, http.MethodGet, "cameras/segment/"+url.PathEscape(segmentID), nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeCameras(data)
}

// CameraByMAC implements Client.
func (c *HTTPClient) CameraByMAC(ctx context.Context, mac int64) ([]Camera, error) {
	data, err := c.Do(ctx, http.MethodGet, "cameras/"+strconv.FormatInt(mac, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeCameras(data)
}

// Segment implements Client.
func (c *HTTPClient) Segment(ctx context.Context, id string) (*Segment, error) {
	data, err := c.Do(ctx, http.MethodGet, "segments/id/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	set, err := DecodeSegments(data)
	if err != nil {
		return nil, err
	}
	if len(set.Segments) == 0 {
		if len(set.Rejected) > 0 {
			return nil, &DecodeError{Field: "features[0].geometry", Err: errors.New(set.Rejected[0].Reason)}
		}
		return nil, fmt.Errorf("segment %s: %w", id, relaierrors.ErrNotFound)
	}
	seg := set.Segments[0]
	return &seg, nil
}

// AllSegments implements Client.
func (c *HTTPClient) AllSegments(ctx context.Context) (*SegmentSet, error) {
	data, err := c.Do(ctx, http.MethodGet, "segments/all", nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeSegments(data)
}

// ActiveSegments implements Client.
func (c *HTTPClient) ActiveSegments(ctx context.Context, bound *orb.Bound) (*SegmentSet, error) {
	data, err := c.Do(ctx, http.MethodGet, "segments/active", nil, nil)
	if err != nil {
		return nil, err
	}
	set, err := DecodeSegments(data)
	if err != nil {
		return nil, err
	}
	if bound != nil {
		set.Segments = FilterByBound(set.Segments, *bound)
	}
	return set, nil
}
