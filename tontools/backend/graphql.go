package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/toncenter/ton-tools-go/tontools/models"
)

type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// GraphQL executes a query and decodes its data into out.
type GraphQL interface {
	Execute(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error
}

type GraphQLClient struct {
	Endpoint  string
	Transport Transport
	Headers   map[string]string
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *GraphQLClient) Execute(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	if vars == nil {
		vars = map[string]interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": vars})
	if err != nil {
		return err
	}
	resp, err := c.Transport.Do(ctx, Request{
		Method:  fiber.MethodPost,
		URL:     c.Endpoint,
		Headers: c.Headers,
		Body:    body,
	})
	if err != nil {
		return err
	}
	var res graphqlResponse
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return fmt.Errorf("%w: failed to parse graphql response (status %d): %v", ErrBackendUnavailable, resp.Status, err)
	}
	if len(res.Errors) > 0 {
		gerr := &GraphQLError{}
		for _, e := range res.Errors {
			gerr.Messages = append(gerr.Messages, e.Message)
		}
		return gerr
	}
	if resp.Status != fiber.StatusOK {
		return fmt.Errorf("%w: graphql returned %d", ErrBackendUnavailable, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(res.Data, out)
}
