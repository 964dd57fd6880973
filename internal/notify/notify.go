package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/ElementBaths/parsedmarc/internal/model"
)

// ErrConfiguration marks a notification that could not even be attempted:
// the credentials file is missing or a required field is empty.
var ErrConfiguration = errors.New("notification configuration missing or incomplete")

const serverTokenHeader = "X-Postmark-Server-Token"

// DeliveryResult reports the single delivery attempt. Detail carries the
// response status and body on failure.
type DeliveryResult struct {
	OK     bool
	Detail string
}

// Credentials are read fresh from the key=value file on every attempt, so
// edits between runs take effect without restart.
type Credentials struct {
	Token string
	From  string
	To    string
}

// LoadCredentials parses a key=value file (blank lines and # comments
// ignored) and validates that all three required fields are present.
func LoadCredentials(path string) (Credentials, error) {
	if path == "" {
		return Credentials{}, fmt.Errorf("%w: no credentials file configured", ErrConfiguration)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return Credentials{}, fmt.Errorf("%w: reading %s: %v", ErrConfiguration, path, err)
	}

	creds := Credentials{
		Token: v.GetString("POSTMARK_API_TOKEN"),
		From:  v.GetString("FROM_EMAIL"),
		To:    v.GetString("TO_EMAIL"),
	}
	for key, val := range map[string]string{
		"POSTMARK_API_TOKEN": creds.Token,
		"FROM_EMAIL":         creds.From,
		"TO_EMAIL":           creds.To,
	} {
		if val == "" {
			return Credentials{}, fmt.Errorf("%w: %s is empty in %s", ErrConfiguration, key, path)
		}
	}
	return creds, nil
}

type payload struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
}

type Notifier struct {
	credentials string
	endpoint    string
	timeout     time.Duration
	client      *http.Client
	now         func() time.Time
}

func New(cfg model.Notify) (*Notifier, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("notify.timeout: %w", err)
	}
	return &Notifier{
		credentials: cfg.Credentials,
		endpoint:    cfg.Endpoint,
		timeout:     timeout,
		client:      &http.Client{},
		now:         time.Now,
	}, nil
}

// WithClock overrides the notifier's clock. This method exists for unit
// testing only.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Notify makes exactly one delivery attempt for a failed primary task.
// The synopsis must already be sanitized. A returned error means
// configuration prevented the attempt; delivery failure is reported
// through the result instead, so the caller can log and move on.
func (n *Notifier) Notify(ctx context.Context, exitCode int, synopsis string) (DeliveryResult, error) {
	creds, err := LoadCredentials(n.credentials)
	if err != nil {
		return DeliveryResult{}, err
	}

	stamp := n.now().UTC().Format("2006-01-02 15:04:05 UTC")
	body := payload{
		From:     creds.From,
		To:       creds.To,
		Subject:  "DMARC pipeline failure at " + stamp,
		TextBody: fmt.Sprintf("The DMARC processing pipeline failed with exit code %d.\n\nError summary: %s\n", exitCode, synopsis),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return DeliveryResult{}, err
	}

	if n.timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(raw))
	if err != nil {
		return DeliveryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(serverTokenHeader, creds.Token)

	resp, err := n.client.Do(req)
	if err != nil {
		return DeliveryResult{Detail: "delivery: " + err.Error()}, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusOK {
		slog.DebugContext(ctx, "failure notification accepted", "to", creds.To)
		return DeliveryResult{OK: true}, nil
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		respBody = []byte("<unreadable body: " + err.Error() + ">")
	}
	return DeliveryResult{
		Detail: fmt.Sprintf("status: %d, body: %s", resp.StatusCode, string(respBody)),
	}, nil
}
