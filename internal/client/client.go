// Package client polls the dispatch board server the way the map view does.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/upstream"
	"github.com/vmihailenco/msgpack/v5"
)

const serviceName = "dispatch board"

const (
	mimeMsgpack = "application/msgpack"
	maxBodySize = 16 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	UseMsgpack bool
	Timeout    time.Duration
}

// Client talks to the /api routes of the server.
type Client struct {
	baseURL    string
	msgpack    bool
	httpClient *http.Client
}

// New creates a client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		msgpack:    opts.UseMsgpack,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Positions is one polled snapshot as seen by the client.
type Positions struct {
	SnapshotID string
	CapturedAt time.Time
	Stale      bool
	Vehicles   []models.VehiclePosition
}

// positionWire tolerates records without coordinates; they decode to NaN so the
// renderer can tell "present but unusable" from "absent".
type positionWire struct {
	ID             string    `json:"id" msgpack:"id"`
	Latitude       *float64  `json:"latitude" msgpack:"latitude"`
	Longitude      *float64  `json:"longitude" msgpack:"longitude"`
	Altitude       *float64  `json:"altitude" msgpack:"altitude"`
	HeadingDegrees *float64  `json:"headingDegrees" msgpack:"headingDegrees"`
	Speed          *float64  `json:"speed" msgpack:"speed"`
	Callsign       string    `json:"callsign" msgpack:"callsign"`
	Registration   string    `json:"registration" msgpack:"registration"`
	AircraftType   string    `json:"aircraftType" msgpack:"aircraftType"`
	Origin         string    `json:"origin" msgpack:"origin"`
	Destination    string    `json:"destination" msgpack:"destination"`
	ObservedAt     time.Time `json:"observedAt" msgpack:"observedAt"`
}

func (w positionWire) toModel() models.VehiclePosition {
	lat, lon := math.NaN(), math.NaN()
	if w.Latitude != nil {
		lat = *w.Latitude
	}
	if w.Longitude != nil {
		lon = *w.Longitude
	}
	return models.VehiclePosition{
		ID:             w.ID,
		Latitude:       lat,
		Longitude:      lon,
		Altitude:       w.Altitude,
		HeadingDegrees: w.HeadingDegrees,
		Speed:          w.Speed,
		Callsign:       w.Callsign,
		Registration:   w.Registration,
		AircraftType:   w.AircraftType,
		Origin:         w.Origin,
		Destination:    w.Destination,
		ObservedAt:     w.ObservedAt,
	}
}

// FetchPositions polls GET /api/positions.
func (c *Client) FetchPositions(ctx context.Context) (*Positions, error) {
	accept := "application/json"
	if c.msgpack {
		accept = mimeMsgpack
	}
	resp, body, err := c.do(ctx, http.MethodGet, "/api/positions", accept, nil)
	if err != nil {
		return nil, err
	}

	var wire []positionWire
	if strings.HasPrefix(resp.Header.Get("Content-Type"), mimeMsgpack) {
		err = msgpack.Unmarshal(body, &wire)
	} else {
		err = json.Unmarshal(body, &wire)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding positions: %w", err)
	}

	out := &Positions{
		SnapshotID: resp.Header.Get("X-Snapshot-Id"),
		Stale:      resp.Header.Get("X-Snapshot-Stale") == "true",
		Vehicles:   make([]models.VehiclePosition, 0, len(wire)),
	}
	if ts := resp.Header.Get("X-Snapshot-Captured-At"); ts != "" {
		out.CapturedAt, _ = time.Parse(time.RFC3339, ts)
	}
	for _, w := range wire {
		out.Vehicles = append(out.Vehicles, w.toModel())
	}
	return out, nil
}

// FetchDispatchCalls polls GET /api/dispatch-records.
func (c *Client) FetchDispatchCalls(ctx context.Context) ([]models.DispatchCall, error) {
	_, body, err := c.do(ctx, http.MethodGet, "/api/dispatch-records", "application/json", nil)
	if err != nil {
		return nil, err
	}
	var calls []models.DispatchCall
	if err := json.Unmarshal(body, &calls); err != nil {
		return nil, fmt.Errorf("decoding dispatch calls: %w", err)
	}
	return calls, nil
}

// ClassifySummary asks the server for a chief complaint.
func (c *Client) ClassifySummary(ctx context.Context, summary string) (string, error) {
	payload, err := json.Marshal(map[string]string{"summary": summary})
	if err != nil {
		return "", err
	}
	_, body, err := c.do(ctx, http.MethodPost, "/api/classify-summary", "application/json", payload)
	if err != nil {
		return "", err
	}
	var out struct {
		ChiefComplaint string `json:"chiefComplaint"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding classification: %w", err)
	}
	return out.ChiefComplaint, nil
}

func (c *Client) do(ctx context.Context, method, path, accept string, payload []byte) (*http.Response, []byte, error) {
	if c.baseURL == "" {
		return nil, nil, upstream.Configuration(serviceName, "server URL is not configured")
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, upstream.Configuration(serviceName, err.Error())
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, upstream.FromTransport(serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, upstream.FromTransport(serviceName, err)
	}
	if resp.StatusCode != http.StatusOK {
		ue := upstream.FromResponse(serviceName, resp)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			ue.Err = errors.New(apiErr.Error)
		}
		return nil, nil, ue
	}
	return resp, body, nil
}
