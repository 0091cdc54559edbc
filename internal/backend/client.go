// Package backend talks to the exam REST API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sjawhar/exam-runner/internal/exam"
)

type Client struct {
	http       *resty.Client
	credential *Credential
	logger     *zap.Logger
}

type testDetail struct {
	Test  exam.Test   `json:"test"`
	Tasks []exam.Task `json:"tasks"`
}

type submitRequest struct {
	Responses []exam.Response `json:"responses"`
}

type submitResponse struct {
	AttemptID int64 `json:"attemptId"`
}

// NewClient builds a client whose requests carry the credential's bearer
// token.
func NewClient(baseURL string, timeout time.Duration, credential *Credential, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := &http.Client{
		Transport: &oauth2.Transport{Source: credential, Base: http.DefaultTransport},
		Timeout:   timeout,
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")

	return &Client{http: rc, credential: credential, logger: logger}
}

// FetchTest loads and validates the test definition.
func (c *Client) FetchTest(ctx context.Context, testID int) (*exam.Test, error) {
	var detail testDetail
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(testID)).
		SetResult(&detail).
		ForceContentType("application/json").
		Get("/tests/{id}")
	if err := c.check("fetch test", resp, err); err != nil {
		return nil, err
	}

	test := detail.Test
	if len(detail.Tasks) > 0 {
		test.Tasks = detail.Tasks
	}
	if err := test.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return &test, nil
}

// Submit posts the responses and returns the attempt ID.
func (c *Client) Submit(ctx context.Context, testID int, responses []exam.Response) (int64, error) {
	if responses == nil {
		responses = []exam.Response{}
	}

	var out submitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(testID)).
		SetBody(submitRequest{Responses: responses}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/tests/{id}/submit")
	if err := c.check("submit test", resp, err); err != nil {
		return 0, err
	}

	c.logger.Info("submission accepted",
		zap.Int("test_id", testID),
		zap.Int("responses", len(responses)),
		zap.Int64("attempt_id", out.AttemptID))
	return out.AttemptID, nil
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthExpired):
			return fmt.Errorf("%s: %w", op, ErrAuthExpired)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		default:
			return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized:
		c.credential.Revoke()
		return fmt.Errorf("%s: %w", op, ErrAuthExpired)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: status %d", op, ErrUnavailable, status)
	case resp.IsError():
		c.logger.Warn("backend rejected request",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("body", truncate(resp.String(), 200)))
		return fmt.Errorf("%s: %w: status %d", op, ErrRejected, status)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
