// Package records reads dispatch calls from the NocoDB record store.
package records

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

	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/upstream"
	"github.com/go-playground/validator/v10"
)

const serviceName = "NocoDB"

const (
	defaultLimit = 100
	maxBodySize  = 8 << 20
)

// SchemaError means the store answered but the payload did not have the
// expected shape. The whole response is rejected.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string { return "invalid record store response: " + e.Err.Error() }
func (e *SchemaError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIToken string
	TableID  string
	Limit    int
	Timeout  time.Duration
}

// Client lists the most recent dispatch calls of one table.
type Client struct {
	baseURL    string
	token      string
	tableID    string
	limit      int
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient creates a record store client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.APIToken,
		tableID:    opts.TableID,
		limit:      limit,
		httpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(),
	}
}

// Configured reports whether base URL, token and table are all set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != "" && c.tableID != ""
}

type listResponse struct {
	List     []json.RawMessage `json:"list"`
	PageInfo *models.PageInfo  `json:"pageInfo"`
}

// ListCalls fetches the newest calls, most recent first.
func (c *Client) ListCalls(ctx context.Context) ([]models.DispatchCall, error) {
	if !c.Configured() {
		return nil, upstream.Configuration(serviceName, "missing NocoDB credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(), nil)
	if err != nil {
		return nil, upstream.Configuration(serviceName, err.Error())
	}
	req.Header.Set("xc-token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.FromTransport(serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstream.FromResponse(serviceName, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, upstream.FromTransport(serviceName, err)
	}
	return c.decode(body)
}

func (c *Client) requestURL() string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("offset", "0")
	q.Set("sort", "-CreatedAt")
	return fmt.Sprintf("%s/api/v2/tables/%s/records?%s", c.baseURL, url.PathEscape(c.tableID), q.Encode())
}

func (c *Client) decode(body []byte) ([]models.DispatchCall, error) {
	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &SchemaError{Err: err}
	}
	if page.List == nil {
		return nil, &SchemaError{Err: errors.New("list: required")}
	}

	calls := make([]models.DispatchCall, 0, len(page.List))
	for i, raw := range page.List {
		call, err := c.decodeCall(raw)
		if err != nil {
			return nil, &SchemaError{Err: fmt.Errorf("list[%d]: %w", i, err)}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func (c *Client) decodeCall(raw json.RawMessage) (models.DispatchCall, error) {
	var call models.DispatchCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return call, err
	}
	if err := c.validate.Struct(call); err != nil {
		return call, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&call.Raw); err != nil {
		return call, err
	}
	return call, nil
}
