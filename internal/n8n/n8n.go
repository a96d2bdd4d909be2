// Package n8n calls the n8n webhooks behind the calendar sync and the
// Dordonia chat.
package n8n

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/calendar"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

var (
	// ErrNotConfigured is returned when the webhook URL is empty.
	ErrNotConfigured = errors.New("n8n: webhook not configured")
	// ErrNoReply is returned when the chat answer carries no text.
	ErrNoReply = errors.New("n8n: empty chat reply")
)

// Config holds the webhook URLs.
type Config struct {
	CalendarWebhookURL string
	ChatWebhookURL     string
}

// Client calls n8n webhooks.
type Client struct {
	http *upstream.Client
	cfg  Config
}

var _ calendar.Fetcher = (*Client)(nil)

// New creates a Client.
func New(hc *upstream.Client, cfg Config) *Client {
	return &Client{http: hc, cfg: cfg}
}

// FetchCalendar returns the raw calendar payload.
func (c *Client) FetchCalendar(ctx context.Context) ([]byte, error) {
	if c.cfg.CalendarWebhookURL == "" {
		return nil, ErrNotConfigured
	}
	header := http.Header{}
	header.Set("Accept", "application/json")
	resp, err := c.http.Do(ctx, upstream.Request{Method: http.MethodGet, URL: c.cfg.CalendarWebhookURL, Header: header})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ChatRequest is one message of a Dordonia conversation.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"chatInput"`
	Persona   string `json:"persona,omitempty"`
}

// Chat forwards a message to the chat workflow and returns its reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if c.cfg.ChatWebhookURL == "" {
		return "", ErrNotConfigured
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("sessionId", func(e *jx.Encoder) { e.Str(req.SessionID) })
		e.Field("chatInput", func(e *jx.Encoder) { e.Str(req.Message) })
		if req.Persona != "" {
			e.Field("persona", func(e *jx.Encoder) { e.Str(req.Persona) })
		}
	})

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.cfg.ChatWebhookURL,
		Header: header,
		Body:   append([]byte(nil), e.Bytes()...),
	})
	if err != nil {
		return "", err
	}
	return Reply(resp.Body)
}

var replyKeys = []string{"output", "reply", "text", "message"}

// Reply extracts the answer text from a chat workflow response: a bare
// string, an object carrying one of output, reply, text or message, or an
// array of such values (n8n items, optionally wrapped in "json").
func Reply(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ErrNoReply
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, `"`) {
		return trimmed, nil
	}
	s, err := reply(jx.DecodeStr(trimmed), 0)
	if err != nil {
		return "", errors.Wrap(err, "decode chat reply")
	}
	if s = strings.TrimSpace(s); s == "" {
		return "", ErrNoReply
	}
	return s, nil
}

func reply(d *jx.Decoder, depth int) (string, error) {
	if depth > 3 {
		return "", d.Skip()
	}
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Array:
		var out string
		err := d.Arr(func(d *jx.Decoder) error {
			if out != "" {
				return d.Skip()
			}
			s, err := reply(d, depth+1)
			out = s
			return err
		})
		return out, err
	case jx.Object:
		found := map[string]string{}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "json", "output", "reply", "text", "message":
				s, err := reply(d, depth+1)
				found[key] = s
				return err
			default:
				return d.Skip()
			}
		})
		if err != nil {
			return "", err
		}
		for _, k := range replyKeys {
			if found[k] != "" {
				return found[k], nil
			}
		}
		return found["json"], nil
	default:
		return "", d.Skip()
	}
}
