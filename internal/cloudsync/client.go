package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const apiPrefix = "/api/records/v1"

// Client talks to the record store server over HTTP.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	token      string
	userID     string
}

type errorBody struct {
	Error string `json:"error"`
}

func NewClient(httpClient *http.Client, baseURL, token, userID string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		dialer:     websocket.DefaultDialer,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		userID:     strings.TrimSpace(userID),
	}
}

func (c *Client) AccountStatus(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/account", nil, &out); err != nil {
		return err
	}
	if out.Status != "available" {
		return fmt.Errorf("%w: account %s", ErrUnauthorized, out.Status)
	}
	return nil
}

func (c *Client) CreateZone(ctx context.Context, zone string) error {
	return c.do(ctx, http.MethodPut, "/zones/"+url.PathEscape(zone), nil, nil)
}

func (c *Client) Fetch(ctx context.Context, zone, id string) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodGet, recordPath(zone, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Save(ctx context.Context, rec Record) (*Record, error) {
	body := map[string]any{"type": rec.Type, "fields": rec.Fields}
	var out Record
	if err := c.do(ctx, http.MethodPut, recordPath(rec.Zone, rec.ID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, zone, id string) error {
	return c.do(ctx, http.MethodDelete, recordPath(zone, id), nil, nil)
}

func (c *Client) Modify(ctx context.Context, zone string, save []Record, deleteIDs []string) error {
	type saveItem struct {
		ID     string         `json:"id"`
		Type   string         `json:"type"`
		Fields map[string]any `json:"fields"`
	}
	body := struct {
		Save   []saveItem `json:"save"`
		Delete []string   `json:"delete"`
	}{Save: make([]saveItem, 0, len(save)), Delete: deleteIDs}
	for _, r := range save {
		body.Save = append(body.Save, saveItem{ID: r.ID, Type: r.Type, Fields: r.Fields})
	}
	if body.Delete == nil {
		body.Delete = []string{}
	}
	return c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zone)+"/modify", body, nil)
}

func (c *Client) Query(ctx context.Context, zone string, q Query) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zone)+"/query", q, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) CreateShare(ctx context.Context, zone, rootRecordID string) (*Share, error) {
	var out Share
	body := map[string]string{"root_record_id": rootRecordID}
	if err := c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zone)+"/shares", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResolveShare(ctx context.Context, locator string) (*Share, error) {
	var out Share
	if err := c.do(ctx, http.MethodGet, "/shares/"+url.PathEscape(locator), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptShare(ctx context.Context, locator string) (*Share, error) {
	var out Share
	if err := c.do(ctx, http.MethodPost, "/shares/"+url.PathEscape(locator)+"/accept", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveSubscription(ctx context.Context, zone, id, recordType string) error {
	body := map[string]string{"record_type": recordType}
	return c.do(ctx, http.MethodPut, "/zones/"+url.PathEscape(zone)+"/subscriptions/"+url.PathEscape(id), body, nil)
}

// Notifications opens the zone event feed over a websocket.
func (c *Client) Notifications(ctx context.Context, zone string) (<-chan Notification, error) {
	u, err := url.Parse(c.baseURL + apiPrefix + "/zones/" + url.PathEscape(zone) + "/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.headers())
	if err != nil {
		if resp != nil {
			return nil, statusError(resp.StatusCode, "")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make(chan Notification, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var n Notification
			if err := conn.ReadJSON(&n); err != nil {
				return
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	if c.token != "" {
		token := c.token
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		h.Set("Authorization", token)
	}
	if c.userID != "" {
		h.Set("X-User-ID", c.userID)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, r)
	if err != nil {
		return err
	}
	req.Header = c.headers()
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		return dec.Decode(out)
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	return statusError(resp.StatusCode, eb.Error)
}

func statusError(code int, msg string) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	case strings.TrimSpace(msg) != "":
		return fmt.Errorf("cloudsync %d: %s", code, msg)
	default:
		return fmt.Errorf("cloudsync status %d", code)
	}
}

func recordPath(zone, id string) string {
	return "/zones/" + url.PathEscape(zone) + "/records/" + url.PathEscape(id)
}
