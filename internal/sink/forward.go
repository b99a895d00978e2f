package sink

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"traffic-router/internal/record"
	"traffic-router/internal/topic"
)

// maxErrorBody caps how much of a failed response ends up in logs.
const maxErrorBody = 512

// Forward posts events as JSON to <baseURL>/<endpoint>.
type Forward struct {
	baseURL string
	client  *http.Client
}

// NewForward builds a forwarding sink. timeout bounds each POST end to end;
// zero means no client-side limit.
func NewForward(baseURL string, timeout time.Duration) *Forward {
	return &Forward{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewForwardWithClient is NewForward with a caller supplied HTTP client.
func NewForwardWithClient(baseURL string, client *http.Client) *Forward {
	return &Forward{baseURL: baseURL, client: client}
}

// JoinURL joins base and endpoint with exactly one slash between them.
func JoinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// Send implements Sink.
func (f *Forward) Send(ctx context.Context, dest topic.Destination, evt record.Event) error {
	url := JoinURL(f.baseURL, dest.Target)

	body, err := record.Encode(evt)
	if err != nil {
		return &Error{Kind: BadRequest, Target: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: BadRequest, Target: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("Sending data to: %s", url)
	resp, err := f.client.Do(req)
	if err != nil {
		return &Error{Kind: NoResponse, Target: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Kind: RemoteStatus, Target: url, Status: resp.StatusCode, Body: string(snippet)}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
