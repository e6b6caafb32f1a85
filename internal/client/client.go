// Package client is a Go client for the certified HTTP surface.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"certified/internal/client/apiclient"
	"certified/internal/model"
)

// APIError surfaces non-2xx responses from the server.
type APIError struct {
	StatusCode int
	Code       string
	Location   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

//nolint:errorlint
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrLockConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

var (
	ErrNotFound     = errors.New("not found")
	ErrLockConflict = errors.New("lock conflict")
)

type Client struct {
	api   apiclient.ClientWithResponsesInterface
	token string
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	var opts []apiclient.ClientOption
	if httpClient != nil {
		opts = append(opts, apiclient.WithHTTPClient(httpClient))
	}
	api, err := apiclient.NewClientWithResponses(baseURL, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create api client: %v", err))
	}
	return &Client{api: api}
}

// WithToken returns a copy of c that sends token as a bearer session.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) editors() []apiclient.RequestEditorFn {
	if c.token == "" {
		return nil
	}
	return []apiclient.RequestEditorFn{func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return nil
	}}
}

// Artifact is a fetched artifact body with its validator.
type Artifact struct {
	Content []byte
	ETag    string
}

// Verify calls the verify endpoint. A bad signature is not an error: it is
// a result with OK false. ErrNotFound reports an unknown artifact id.
func (c *Client) Verify(ctx context.Context, req model.VerifyRequest) (model.VerifyResult, error) {
	resp, err := c.api.VerifyArtifactWithResponse(ctx, req, c.editors()...)
	if err != nil {
		return model.VerifyResult{}, err
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		if resp.JSON200 == nil {
			return model.VerifyResult{}, fmt.Errorf("missing body for 200 response")
		}
		return *resp.JSON200, nil
	default:
		return model.VerifyResult{}, newAPIError(resp.StatusCode(), resp.Body, resp.HTTPResponse)
	}
}

// GetArtifact fetches the canonical artifact body.
func (c *Client) GetArtifact(ctx context.Context, id string) (Artifact, error) {
	resp, err := c.api.GetArtifactWithResponse(ctx, id, c.editors()...)
	if err != nil {
		return Artifact{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return Artifact{}, newAPIError(resp.StatusCode(), resp.Body, resp.HTTPResponse)
	}
	return Artifact{Content: resp.Body, ETag: resp.HTTPResponse.Header.Get("ETag")}, nil
}

// GetSignature fetches the detached signature of an artifact.
func (c *Client) GetSignature(ctx context.Context, id string) ([]byte, error) {
	art, err := c.GetArtifact(ctx, id+".sig")
	if err != nil {
		return nil, err
	}
	return art.Content, nil
}

// GetItem reads the latest version of an item.
func (c *Client) GetItem(ctx context.Context, id string) (model.Document, error) {
	return itemResult(c.api.GetItemWithResponse(ctx, id, c.editors()...))
}

// UpsertItem creates or edits a draft item. Editing needs the current lock hash.
func (c *Client) UpsertItem(ctx context.Context, id, lockHash string, content json.RawMessage) (model.Document, error) {
	return itemResult(c.api.PutItemWithResponse(ctx, id, apiclient.PutItemJSONRequestBody{
		LockHash: lockHash,
		Content:  content,
	}, c.editors()...))
}

// Publish consumes lockHash and publishes the current draft.
func (c *Client) Publish(ctx context.Context, id, lockHash string) (model.Document, error) {
	return itemResult(c.api.PublishItemWithResponse(ctx, id, apiclient.PublishItemJSONRequestBody{
		LockHash: lockHash,
	}, c.editors()...))
}

// Audit lists log records in append order, optionally of one kind.
func (c *Client) Audit(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	params := &apiclient.ListAuditParams{}
	if kind != "" {
		k := string(kind)
		params.Kind = &k
	}
	resp, err := c.api.ListAuditWithResponse(ctx, params, c.editors()...)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		if resp.JSON200 == nil {
			return nil, fmt.Errorf("missing body for 200 response")
		}
		return *resp.JSON200, nil
	default:
		return nil, newAPIError(resp.StatusCode(), resp.Body, resp.HTTPResponse)
	}
}

func itemResult(resp *apiclient.ItemResponse, err error) (model.Document, error) {
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		if resp.JSON200 == nil {
			return nil, fmt.Errorf("missing body for 200 response")
		}
		return *resp.JSON200, nil
	default:
		return nil, newAPIError(resp.StatusCode(), resp.Body, resp.HTTPResponse)
	}
}

func newAPIError(status int, body []byte, rsp *http.Response) error {
	e := &APIError{StatusCode: status, Body: string(body)}
	var eb model.ErrorBody
	if json.Unmarshal(body, &eb) == nil {
		e.Code = eb.Error.Code
	}
	if rsp != nil {
		e.Location = rsp.Header.Get("Location")
	}
	return e
}
