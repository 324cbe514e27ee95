package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/toncenter/ton-tools-go/tontools/models"
)

type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	Body    []byte
}

type Response struct {
	Status  int
	Body    []byte
	// Cookies holds the name=value pairs of Set-Cookie headers.
	Cookies []string
}

// Transport performs a single HTTP exchange. Implementations report network
// failures, timeouts and 5xx statuses as ErrBackendUnavailable.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// AgentTransport sends requests with the fiber client agent.
type AgentTransport struct {
	Timeout time.Duration
}

func NewAgentTransport(timeout time.Duration) *AgentTransport {
	return &AgentTransport{Timeout: timeout}
}

func (t *AgentTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	baseUrl, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if len(req.Query) > 0 {
		baseUrl.RawQuery = req.Query.Encode()
	}

	var agent *fiber.Agent
	switch req.Method {
	case fiber.MethodPost:
		agent = fiber.Post(baseUrl.String())
	case "", fiber.MethodGet:
		agent = fiber.Get(baseUrl.String())
	default:
		return nil, fmt.Errorf("%w: method %s", ErrUnsupportedOperation, req.Method)
	}

	timeout := t.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout == 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	for k, v := range req.Headers {
		agent.Set(k, v)
	}
	if req.Body != nil {
		agent.Add("Content-Type", "application/json")
		agent.Body(req.Body)
	}

	resp := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(resp)
	agent.SetResponse(resp)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrBackendUnavailable, req.Method, baseUrl.Host, errs[0])
	}
	if code >= 500 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrBackendUnavailable, baseUrl.Host, code)
	}
	res := &Response{Status: code, Body: append([]byte(nil), body...)}
	resp.Header.VisitAllCookie(func(_, value []byte) {
		pair, _, _ := strings.Cut(string(value), ";")
		res.Cookies = append(res.Cookies, pair)
	})
	return res, nil
}
