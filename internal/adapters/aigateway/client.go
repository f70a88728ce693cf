/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nexushq/nexus/internal/config"
	"github.com/rs/zerolog"
)

// Client talks to the OpenAI-compatible model gateway. Streaming calls
// deliberately bypass the SDK: the response body is relayed to callers
// byte-for-byte and must not be re-serialized.
type Client struct {
	url  string
	key  string
	http *http.Client
	log  zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	// No client-wide timeout: it would span the streamed body and cut
	// long relays mid-stream. Dial and first-byte are bounded; the body
	// lives as long as the request context.
	return &Client{
		url: strings.TrimRight(cfg.AIGatewayURL, "/") + "/chat/completions",
		key: cfg.AIGatewayKey,
		http: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.AIHTTPTimeout,
		}},
		log: log,
	}
}

// StreamChat posts payload and returns the open response body for 2xx
// answers. For other statuses the body is drained and closed, and only
// the status is returned. The caller owns closing a returned body.
func (c *Client) StreamChat(ctx context.Context, payload map[string]any) (io.ReadCloser, int, error) {
	if strings.TrimSpace(c.key) == "" {
		return nil, 0, errors.New("aigateway: missing key")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, resp.StatusCode, nil
	}
	return resp.Body, resp.StatusCode, nil
}
