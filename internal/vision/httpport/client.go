// Package httpport implements vision.Port against a perception/input sidecar
// that exposes template matching and input injection over JSON HTTP.
package httpport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"partysync/internal/party"
	"partysync/internal/vision"
	"strings"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type probeRequest struct {
	ClientID  party.ClientID `json:"client_id"`
	Image     string         `json:"image"`
	Threshold float64        `json:"threshold"`
	Region    *vision.Region `json:"region,omitempty"`
}

type actionRequest struct {
	ClientID party.ClientID `json:"client_id"`
	X        int            `json:"x"`
	Y        int            `json:"y"`
	Key      vision.Key     `json:"key,omitempty"`
	Text     string         `json:"text,omitempty"`
}

type clipboardResponse struct {
	Text string `json:"text"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calling %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) Probe(ctx context.Context, id party.ClientID, t vision.Template) (vision.Match, error) {
	var m vision.Match
	err := c.do(ctx, http.MethodPost, "/v1/probe", probeRequest{
		ClientID:  id,
		Image:     t.Image,
		Threshold: t.Threshold,
		Region:    t.Region,
	}, &m)
	return m, err
}

func (c *Client) Click(ctx context.Context, id party.ClientID, p vision.Point) error {
	return c.do(ctx, http.MethodPost, "/v1/click", actionRequest{ClientID: id, X: p.X, Y: p.Y}, nil)
}

func (c *Client) PressKey(ctx context.Context, id party.ClientID, k vision.Key) error {
	return c.do(ctx, http.MethodPost, "/v1/key", actionRequest{ClientID: id, Key: k}, nil)
}

func (c *Client) TypeText(ctx context.Context, id party.ClientID, at vision.Point, text string) error {
	return c.do(ctx, http.MethodPost, "/v1/type", actionRequest{ClientID: id, X: at.X, Y: at.Y, Text: text}, nil)
}

func (c *Client) SelectAllAndCopy(ctx context.Context, id party.ClientID) error {
	return c.do(ctx, http.MethodPost, "/v1/copy", actionRequest{ClientID: id}, nil)
}

func (c *Client) ReadClipboard(ctx context.Context) (string, error) {
	var out clipboardResponse
	if err := c.do(ctx, http.MethodGet, "/v1/clipboard", nil, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

var _ vision.Port = (*Client)(nil)
