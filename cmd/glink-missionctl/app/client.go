package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// client is a thin wrapper over the gcsd REST API.
type client struct {
	base string
	http *http.Client
}

func newClient(server string) *client {
	return &client{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) get(path string, into any) error {
	return c.do(http.MethodGet, path, nil, into)
}

func (c *client) post(path string, into any) error {
	return c.do(http.MethodPost, path, nil, into)
}

func (c *client) put(path string, body, into any) error {
	return c.do(http.MethodPut, path, body, into)
}

func (c *client) do(method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if into == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// wsURL converts the server base URL into the websocket event feed URL.
func (c *client) wsURL(kind string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/v1/events"
	if kind != "" {
		u.RawQuery = "kind=" + url.QueryEscape(kind)
	}
	return u.String(), nil
}
