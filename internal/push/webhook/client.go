package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const DefaultTimeout = 5 * time.Second

// Client posts markdown messages to a chat-bot style webhook. When a secret
// is set the URL carries a timestamp and an HMAC-SHA256 signature.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// Response is the bot's acknowledgement body.
type Response struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewClient(endpoint, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

func (c *Client) SendMarkdown(ctx context.Context, title, markdown string) error {
	if !c.Configured() {
		return fmt.Errorf("webhook url is empty")
	}

	body, err := json.Marshal(map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  markdown,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint, err := c.signedURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("webhook errcode=%d errmsg=%s", out.ErrCode, out.ErrMsg)
	}
	return nil
}

func (c *Client) signedURL() (string, error) {
	if c.secret == "" {
		return c.endpoint, nil
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", sign(ts+"\n"+c.secret, c.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
