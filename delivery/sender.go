package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/resthook/signature"
)

const (
	maxResponseBody = 1024

	// UserAgent is sent with every delivery.
	UserAgent = "Resthook-Webhooks/1.0"

	HeaderEvent    = "X-Resthook-Event"
	HeaderDelivery = "X-Resthook-Delivery"
	HeaderAttempt  = "X-Resthook-Attempt"
)

// Envelope is the body POSTed to subscribers.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
	signer *signature.Signer
	now    func() time.Time
}

// NewSender creates a sender with the given per-request timeout. A nil
// signer sends unsigned requests.
func NewSender(timeout time.Duration, signer *signature.Signer) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
		signer: signer,
		now:    time.Now,
	}
}

// Send POSTs the job's payload to its target URL once.
func (s *Sender) Send(ctx context.Context, j *Job) Result {
	now := s.now().UTC()

	data := j.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	body, err := json.Marshal(Envelope{
		Event:     string(j.EventType),
		Timestamp: now.Format("2006-01-02T15:04:05.000Z07:00"),
		Data:      data,
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, string(j.EventType))
	req.Header.Set(HeaderDelivery, j.DeliveryKey())
	req.Header.Set(HeaderAttempt, strconv.Itoa(j.Attempt))

	if s.signer != nil {
		ts := now.Unix()
		req.Header.Set(signature.HeaderSignature, s.signer.Sign(body, ts))
		req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: target URLs are tenant-registered webhook receivers.
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: latency,
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}

	switch {
	case !res.OK():
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	case readErr != nil:
		// The receiver already accepted the delivery.
		res.Response = fmt.Sprintf("read response: %v", readErr)
	}

	return res
}
