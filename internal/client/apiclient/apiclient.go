// Package apiclient provides primitives to interact with the certified HTTP
// API, in the shape oapi-codegen generates for a client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oapi-codegen/runtime"

	"certified/internal/model"
)

// VerifyArtifactJSONRequestBody defines body for VerifyArtifact for application/json ContentType.
type VerifyArtifactJSONRequestBody = model.VerifyRequest

// PutItemJSONRequestBody defines body for PutItem for application/json ContentType.
type PutItemJSONRequestBody = model.UpsertItemRequest

// PublishItemJSONRequestBody defines body for PublishItem for application/json ContentType.
type PublishItemJSONRequestBody = model.PublishRequest

// ListAuditParams defines parameters for ListAudit.
type ListAuditParams struct {
	// Kind restricts the listing to one record kind.
	Kind *string `form:"kind,omitempty" json:"kind,omitempty"`
}

// RequestEditorFn is the function signature for the RequestEditor callback function
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// Doer performs HTTP requests.
//
// The standard http.Client implements this interface.
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client which conforms to the OpenAPI3 specification for this service.
type Client struct {
	// The endpoint of the server conforming to this interface, with scheme,
	// https://api.deepmap.com for example. This can contain a path relative
	// to the server, such as https://api.deepmap.com/dev-test, and all the
	// paths in the swagger spec will be appended to the server.
	Server string

	// Doer for performing requests, typically a *http.Client with any
	// customized settings, such as certificate chains.
	Client HttpRequestDoer

	// A list of callbacks for modifying requests which are generated before sending over
	// the network.
	RequestEditors []RequestEditorFn
}

// ClientOption allows setting custom parameters during construction
type ClientOption func(*Client) error

// Creates a new Client, with reasonable defaults
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	client := Client{
		Server: server,
	}
	for _, o := range opts {
		if err := o(&client); err != nil {
			return nil, err
		}
	}
	// ensure the server URL always has a trailing slash
	if !strings.HasSuffix(client.Server, "/") {
		client.Server += "/"
	}
	if client.Client == nil {
		client.Client = &http.Client{}
	}
	return &client, nil
}

// WithHTTPClient allows overriding the default Doer, which is
// automatically created using http.Client. This is useful for tests.
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) error {
		c.Client = doer
		return nil
	}
}

// WithRequestEditorFn allows setting up a callback function, which will be
// called right before sending the request. This can be used to mutate the request.
func WithRequestEditorFn(fn RequestEditorFn) ClientOption {
	return func(c *Client) error {
		c.RequestEditors = append(c.RequestEditors, fn)
		return nil
	}
}

// The interface specification for the client above.
type ClientInterface interface {
	// GetArtifact request
	GetArtifact(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*http.Response, error)

	// VerifyArtifactWithBody request with any body
	VerifyArtifactWithBody(ctx context.Context, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error)

	VerifyArtifact(ctx context.Context, body VerifyArtifactJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error)

	// GetItem request
	GetItem(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*http.Response, error)

	// PutItemWithBody request with any body
	PutItemWithBody(ctx context.Context, id string, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error)

	PutItem(ctx context.Context, id string, body PutItemJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error)

	// PublishItemWithBody request with any body
	PublishItemWithBody(ctx context.Context, id string, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error)

	PublishItem(ctx context.Context, id string, body PublishItemJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error)

	// ListAudit request
	ListAudit(ctx context.Context, params *ListAuditParams, reqEditors ...RequestEditorFn) (*http.Response, error)
}

func (c *Client) GetArtifact(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewGetArtifactRequest(c.Server, id)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) VerifyArtifactWithBody(ctx context.Context, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewVerifyArtifactRequestWithBody(c.Server, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) VerifyArtifact(ctx context.Context, body VerifyArtifactJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewVerifyArtifactRequest(c.Server, body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) GetItem(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewGetItemRequest(c.Server, id)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) PutItemWithBody(ctx context.Context, id string, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPutItemRequestWithBody(c.Server, id, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) PutItem(ctx context.Context, id string, body PutItemJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPutItemRequest(c.Server, id, body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) PublishItemWithBody(ctx context.Context, id string, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPublishItemRequestWithBody(c.Server, id, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) PublishItem(ctx context.Context, id string, body PublishItemJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPublishItemRequest(c.Server, id, body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) ListAudit(ctx context.Context, params *ListAuditParams, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewListAuditRequest(c.Server, params)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, reqEditors)
}

func (c *Client) send(ctx context.Context, req *http.Request, reqEditors []RequestEditorFn) (*http.Response, error) {
	req = req.WithContext(ctx)
	if err := c.applyEditors(ctx, req, reqEditors); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

// NewGetArtifactRequest generates requests for GetArtifact
func NewGetArtifactRequest(server string, id string) (*http.Request, error) {
	return newIDRequest(server, http.MethodGet, "/api/certified/artifacts/%s", id, "", nil)
}

// NewVerifyArtifactRequest calls the generic VerifyArtifact builder with application/json body
func NewVerifyArtifactRequest(server string, body VerifyArtifactJSONRequestBody) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return NewVerifyArtifactRequestWithBody(server, "application/json", bytes.NewReader(buf))
}

// NewVerifyArtifactRequestWithBody generates requests for VerifyArtifact with any type of body
func NewVerifyArtifactRequestWithBody(server string, contentType string, body io.Reader) (*http.Request, error) {
	queryURL, err := operationURL(server, "/api/certified/verify")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, queryURL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", contentType)
	return req, nil
}

// NewGetItemRequest generates requests for GetItem
func NewGetItemRequest(server string, id string) (*http.Request, error) {
	return newIDRequest(server, http.MethodGet, "/api/certified/items/%s", id, "", nil)
}

// NewPutItemRequest calls the generic PutItem builder with application/json body
func NewPutItemRequest(server string, id string, body PutItemJSONRequestBody) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return NewPutItemRequestWithBody(server, id, "application/json", bytes.NewReader(buf))
}

// NewPutItemRequestWithBody generates requests for PutItem with any type of body
func NewPutItemRequestWithBody(server string, id string, contentType string, body io.Reader) (*http.Request, error) {
	return newIDRequest(server, http.MethodPut, "/api/certified/items/%s", id, contentType, body)
}

// NewPublishItemRequest calls the generic PublishItem builder with application/json body
func NewPublishItemRequest(server string, id string, body PublishItemJSONRequestBody) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return NewPublishItemRequestWithBody(server, id, "application/json", bytes.NewReader(buf))
}

// NewPublishItemRequestWithBody generates requests for PublishItem with any type of body
func NewPublishItemRequestWithBody(server string, id string, contentType string, body io.Reader) (*http.Request, error) {
	return newIDRequest(server, http.MethodPost, "/api/certified/items/%s/publish", id, contentType, body)
}

// NewListAuditRequest generates requests for ListAudit
func NewListAuditRequest(server string, params *ListAuditParams) (*http.Request, error) {
	queryURL, err := operationURL(server, "/api/certified/audit")
	if err != nil {
		return nil, err
	}

	if params != nil {
		queryValues := queryURL.Query()

		if params.Kind != nil {
			if queryFrag, err := runtime.StyleParamWithLocation("form", true, "kind", runtime.ParamLocationQuery, *params.Kind); err != nil {
				return nil, err
			} else if parsed, err := url.ParseQuery(queryFrag); err != nil {
				return nil, err
			} else {
				for k, v := range parsed {
					for _, v2 := range v {
						queryValues.Add(k, v2)
					}
				}
			}
		}

		queryURL.RawQuery = queryValues.Encode()
	}

	return http.NewRequest(http.MethodGet, queryURL.String(), nil)
}

// newIDRequest builds a request whose path carries the {id} parameter.
func newIDRequest(server, method, pathFormat, id, contentType string, body io.Reader) (*http.Request, error) {
	pathParam0, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return nil, err
	}
	queryURL, err := operationURL(server, fmt.Sprintf(pathFormat, pathParam0))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, queryURL.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}
	return req, nil
}

func operationURL(server, operationPath string) (*url.URL, error) {
	serverURL, err := url.Parse(server)
	if err != nil {
		return nil, err
	}
	if operationPath[0] == '/' {
		operationPath = "." + operationPath
	}
	return serverURL.Parse(operationPath)
}

func (c *Client) applyEditors(ctx context.Context, req *http.Request, additionalEditors []RequestEditorFn) error {
	for _, r := range c.RequestEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	for _, r := range additionalEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// ClientWithResponses builds on ClientInterface to offer response payloads
type ClientWithResponses struct {
	ClientInterface
}

// NewClientWithResponses creates a new ClientWithResponses, which wraps
// Client with return type handling
func NewClientWithResponses(server string, opts ...ClientOption) (*ClientWithResponses, error) {
	client, err := NewClient(server, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientWithResponses{client}, nil
}

// ClientWithResponsesInterface is the interface specification for the client with responses above.
type ClientWithResponsesInterface interface {
	GetArtifactWithResponse(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*GetArtifactResponse, error)
	VerifyArtifactWithResponse(ctx context.Context, body VerifyArtifactJSONRequestBody, reqEditors ...RequestEditorFn) (*VerifyArtifactResponse, error)
	GetItemWithResponse(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*ItemResponse, error)
	PutItemWithResponse(ctx context.Context, id string, body PutItemJSONRequestBody, reqEditors ...RequestEditorFn) (*ItemResponse, error)
	PublishItemWithResponse(ctx context.Context, id string, body PublishItemJSONRequestBody, reqEditors ...RequestEditorFn) (*ItemResponse, error)
	ListAuditWithResponse(ctx context.Context, params *ListAuditParams, reqEditors ...RequestEditorFn) (*ListAuditResponse, error)
}

var _ ClientWithResponsesInterface = (*ClientWithResponses)(nil)

type GetArtifactResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSONDefault  *model.ErrorBody
}

// Status returns HTTPResponse.Status
func (r GetArtifactResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r GetArtifactResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

type VerifyArtifactResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *model.VerifyResult
	JSONDefault  *model.ErrorBody
}

// Status returns HTTPResponse.Status
func (r VerifyArtifactResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r VerifyArtifactResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// ItemResponse is shared by GetItem, PutItem and PublishItem.
type ItemResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *model.Document
	JSONDefault  *model.ErrorBody
}

// Status returns HTTPResponse.Status
func (r ItemResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r ItemResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

type ListAuditResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *[]model.Record
	JSONDefault  *model.ErrorBody
}

// Status returns HTTPResponse.Status
func (r ListAuditResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r ListAuditResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// GetArtifactWithResponse request returning *GetArtifactResponse
func (c *ClientWithResponses) GetArtifactWithResponse(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*GetArtifactResponse, error) {
	rsp, err := c.GetArtifact(ctx, id, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseGetArtifactResponse(rsp)
}

// VerifyArtifactWithResponse request returning *VerifyArtifactResponse
func (c *ClientWithResponses) VerifyArtifactWithResponse(ctx context.Context, body VerifyArtifactJSONRequestBody, reqEditors ...RequestEditorFn) (*VerifyArtifactResponse, error) {
	rsp, err := c.VerifyArtifact(ctx, body, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseVerifyArtifactResponse(rsp)
}

// GetItemWithResponse request returning *ItemResponse
func (c *ClientWithResponses) GetItemWithResponse(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*ItemResponse, error) {
	rsp, err := c.GetItem(ctx, id, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseItemResponse(rsp)
}

// PutItemWithResponse request returning *ItemResponse
func (c *ClientWithResponses) PutItemWithResponse(ctx context.Context, id string, body PutItemJSONRequestBody, reqEditors ...RequestEditorFn) (*ItemResponse, error) {
	rsp, err := c.PutItem(ctx, id, body, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseItemResponse(rsp)
}

// PublishItemWithResponse request returning *ItemResponse
func (c *ClientWithResponses) PublishItemWithResponse(ctx context.Context, id string, body PublishItemJSONRequestBody, reqEditors ...RequestEditorFn) (*ItemResponse, error) {
	rsp, err := c.PublishItem(ctx, id, body, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseItemResponse(rsp)
}

// ListAuditWithResponse request returning *ListAuditResponse
func (c *ClientWithResponses) ListAuditWithResponse(ctx context.Context, params *ListAuditParams, reqEditors ...RequestEditorFn) (*ListAuditResponse, error) {
	rsp, err := c.ListAudit(ctx, params, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseListAuditResponse(rsp)
}

// ParseGetArtifactResponse parses an HTTP response from a GetArtifactWithResponse call
func ParseGetArtifactResponse(rsp *http.Response) (*GetArtifactResponse, error) {
	bodyBytes, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &GetArtifactResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}
	if rsp.StatusCode != http.StatusOK && isJSON(rsp) {
		var dest model.ErrorBody
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSONDefault = &dest
	}
	return response, nil
}

// ParseVerifyArtifactResponse parses an HTTP response from a VerifyArtifactWithResponse call
func ParseVerifyArtifactResponse(rsp *http.Response) (*VerifyArtifactResponse, error) {
	bodyBytes, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &VerifyArtifactResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}
	switch {
	case !isJSON(rsp):
	case rsp.StatusCode == http.StatusOK:
		var dest model.VerifyResult
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	default:
		var dest model.ErrorBody
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSONDefault = &dest
	}
	return response, nil
}

// ParseItemResponse parses an HTTP response from the item calls
func ParseItemResponse(rsp *http.Response) (*ItemResponse, error) {
	bodyBytes, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &ItemResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}
	switch {
	case !isJSON(rsp):
	case rsp.StatusCode == http.StatusOK:
		var dest model.Document
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	default:
		var dest model.ErrorBody
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSONDefault = &dest
	}
	return response, nil
}

// ParseListAuditResponse parses an HTTP response from a ListAuditWithResponse call
func ParseListAuditResponse(rsp *http.Response) (*ListAuditResponse, error) {
	bodyBytes, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &ListAuditResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}
	switch {
	case !isJSON(rsp):
	case rsp.StatusCode == http.StatusOK:
		var dest []model.Record
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	default:
		var dest model.ErrorBody
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSONDefault = &dest
	}
	return response, nil
}

func readBody(rsp *http.Response) ([]byte, error) {
	defer func() { _ = rsp.Body.Close() }()
	return io.ReadAll(rsp.Body)
}

func isJSON(rsp *http.Response) bool {
	return strings.Contains(rsp.Header.Get("Content-Type"), "json")
}
