// Package feed queries the rate-limited live aircraft position provider.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dispatch-board/backend/internal/upstream"
	log "github.com/sirupsen/logrus"
)

const serviceName = "aircraft feed"

// maxBodySize caps how much of a feed response is read.
const maxBodySize = 16 << 20

// Region is the bounding box of the live-position query.
type Region struct {
	South, West, North, East float64
}

// Options configures a Client.
type Options struct {
	URL       string
	Token     string
	Region    Region
	TypeCodes []string // when non-empty, only these aircraft types are kept
	Timeout   time.Duration
}

// Client fetches aircraft records for a fixed region.
type Client struct {
	url        string
	token      string
	region     Region
	typeCodes  map[string]struct{}
	httpClient *http.Client
}

// NewClient creates a feed client. Missing URL or token are reported per call
// as configuration errors rather than here.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		url:        opts.URL,
		token:      opts.Token,
		region:     opts.Region,
		httpClient: &http.Client{Timeout: timeout},
	}
	if len(opts.TypeCodes) > 0 {
		c.typeCodes = make(map[string]struct{}, len(opts.TypeCodes))
		for _, code := range opts.TypeCodes {
			c.typeCodes[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
		}
	}
	return c
}

// FetchAircraft performs one region query and returns the raw records.
func (c *Client) FetchAircraft(ctx context.Context) ([]Aircraft, error) {
	if c.url == "" {
		return nil, upstream.Configuration(serviceName, "feed URL is not configured")
	}
	if c.token == "" {
		return nil, upstream.Configuration(serviceName, "feed token is not configured")
	}

	reqURL, err := c.requestURL()
	if err != nil {
		return nil, upstream.Configuration(serviceName, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, upstream.FromTransport(serviceName, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.FromTransport(serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, upstream.FromResponse(serviceName, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, upstream.FromTransport(serviceName, err)
	}

	records, err := decodeAircraft(body)
	if err != nil {
		return nil, &upstream.Error{Kind: upstream.KindOther, Service: serviceName, Status: resp.StatusCode, Err: err}
	}
	return c.filter(records), nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}
	q := u.Query()
	q.Set("lamin", formatCoord(c.region.South))
	q.Set("lomin", formatCoord(c.region.West))
	q.Set("lamax", formatCoord(c.region.North))
	q.Set("lomax", formatCoord(c.region.East))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) filter(records []Aircraft) []Aircraft {
	if c.typeCodes == nil {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if _, ok := c.typeCodes[strings.ToUpper(strings.TrimSpace(r.Type))]; ok {
			out = append(out, r)
		}
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeAircraft accepts a JSON array of records, an object keyed by aircraft
// identifier, or an object wrapping the array under "aircraft". Records that do
// not decode are skipped one by one.
func decodeAircraft(body []byte) ([]Aircraft, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty feed response")
	}

	switch trimmed[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decoding aircraft array: %w", err)
		}
		return decodeList(raws), nil
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, fmt.Errorf("decoding aircraft map: %w", err)
		}
		if wrapped, ok := keyed["aircraft"]; ok {
			var raws []json.RawMessage
			if err := json.Unmarshal(wrapped, &raws); err != nil {
				return nil, fmt.Errorf("decoding aircraft list: %w", err)
			}
			return decodeList(raws), nil
		}
		return decodeKeyed(keyed), nil
	default:
		return nil, fmt.Errorf("unexpected feed payload starting with %q", trimmed[0])
	}
}

func decodeList(raws []json.RawMessage) []Aircraft {
	records := make([]Aircraft, 0, len(raws))
	for i, raw := range raws {
		a, ok := decodeRecord(raw)
		if !ok {
			log.WithField("component", "feed").Debugf("skipping undecodable record at index %d", i)
			continue
		}
		records = append(records, a)
	}
	return records
}

func decodeKeyed(keyed map[string]json.RawMessage) []Aircraft {
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]Aircraft, 0, len(keys))
	for _, k := range keys {
		a, ok := decodeRecord(keyed[k])
		if !ok {
			continue
		}
		if a.ID == "" {
			a.ID = k
		}
		records = append(records, a)
	}
	return records
}

// decodeRecord skips anything that is not an object; providers mix counts and
// version numbers into the same payload.
func decodeRecord(raw json.RawMessage) (Aircraft, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Aircraft{}, false
	}
	var a Aircraft
	if err := json.Unmarshal(raw, &a); err != nil {
		return Aircraft{}, false
	}
	return a, true
}
