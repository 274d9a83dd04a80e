package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is the payload accepted by the push gateway.
type Message struct {
	Token string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type httpSender struct {
	endpoint string
	cli      *http.Client
}

// NewSender returns a Sender that POSTs messages to the configured push
// gateway endpoint.
func NewSender(endpoint string, timeout time.Duration) Sender {
	return &httpSender{
		endpoint: endpoint,
		cli:      &http.Client{Timeout: timeout},
	}
}

func (s *httpSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return fmt.Errorf("push token cannot be empty")
	}
	if msg.Sound == "" {
		msg.Sound = "default"
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push gateway returned status: %d", resp.StatusCode)
	}

	return nil
}
