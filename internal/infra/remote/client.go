package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"test-session-service/internal/app"
	"test-session-service/internal/domain"
)

const (
	// DefaultBaseURL is the webhook host serving tokens, definitions and answers.
	DefaultBaseURL = "https://n8n.mentaleto.ir"
	// DefaultTimeout bounds every upstream request.
	DefaultTimeout = 15 * time.Second

	validateTokenPath  = "/webhook/validate-test-token"
	testDefinitionPath = "/webhook/test-definition"
	submitAnswersPath  = "/webhook/submit-answers"

	maxBodyBytes = 4 << 20
)

var errMissingDefinition = errors.New("response carries no definition")

// Client talks to the upstream webhook service. It implements
// app.TokenValidator, app.DefinitionProvider and app.AnswerSink.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ValidateToken returns the issuer's user data for a usable token.
func (c *Client) ValidateToken(ctx context.Context, token string) (json.RawMessage, error) {
	q := url.Values{"token": {token}}
	body, err := c.get(ctx, validateTokenPath, q)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return env.Data, nil
}

type definitionData struct {
	Definition json.RawMessage `json:"definition"`
	Prefill    map[string]any  `json:"prefill"`
}

// FetchDefinition loads the section schema of a remote test and the
// respondent's prefill values.
func (c *Client) FetchDefinition(ctx context.Context, testID, token string) (domain.DefinitionBundle, error) {
	q := url.Values{"testId": {testID}, "token": {token}}
	body, err := c.get(ctx, testDefinitionPath, q)
	if err != nil {
		return domain.DefinitionBundle{}, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.DefinitionBundle{}, fmt.Errorf("decode definition response: %w", err)
	}
	var data definitionData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return domain.DefinitionBundle{}, fmt.Errorf("decode definition data: %w", err)
		}
	}
	if len(data.Definition) == 0 || string(data.Definition) == "null" {
		return domain.DefinitionBundle{}, errMissingDefinition
	}
	if err := validateDefinition(data.Definition); err != nil {
		return domain.DefinitionBundle{}, fmt.Errorf("definition %s: %w", testID, err)
	}
	var def domain.TestDefinition
	if err := json.Unmarshal(data.Definition, &def); err != nil {
		return domain.DefinitionBundle{}, fmt.Errorf("decode definition %s: %w", testID, err)
	}
	return domain.DefinitionBundle{Definition: def, Prefill: stringifyPrefill(data.Prefill)}, nil
}

// SubmitAnswers posts a completed attempt. A response with success=false, or
// a non-2xx response, is an application error carrying the server message.
func (c *Client) SubmitAnswers(ctx context.Context, payload app.SubmissionPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitAnswersPath, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if status < 200 || status > 299 {
		return &domain.ApplicationError{Message: env.Message}
	}
	if decodeErr != nil {
		return &domain.ApplicationError{}
	}
	if env.Success == nil || !*env.Success {
		return &domain.ApplicationError{Message: env.Message}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &domain.StatusError{Code: status, Body: body}
	}
	return body, nil
}

// do returns a TransportError when no response arrived.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &domain.TransportError{Err: err}
	}
	return resp.StatusCode, body, nil
}

func stringifyPrefill(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			raw, err := json.Marshal(val)
			if err == nil {
				out[k] = string(raw)
			}
		}
	}
	return out
}
