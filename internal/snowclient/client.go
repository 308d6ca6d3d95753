package snowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/groeimetai/snow-flow/internal/result"
)

// Client performs authenticated REST calls against one ServiceNow
// instance. Clients are cheap per-call values issued by the Provider;
// handlers must not cache them across invocations because the backing
// token rotates underneath.
type Client struct {
	provider *Provider
	key      string
	instance string
	creds    Credentials
	baseURL  string
	httpc    *http.Client
}

// BaseURL returns the instance base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues a GET against an API path (e.g. "/api/now/table/incident").
func (c *Client) Get(ctx context.Context, apiPath string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, apiPath, query, nil)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, apiPath string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, apiPath, nil, body)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, apiPath string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, apiPath, nil, body)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, apiPath string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, apiPath, nil, body)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, apiPath string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, apiPath, nil, nil)
}

// do performs one call with the current token. On a 401 it refreshes the
// credential exactly once and retries; a second 401 surfaces as an
// authentication error so the calling agent can prompt for re-auth instead
// of looping.
func (c *Client) do(ctx context.Context, method, apiPath string, query url.Values, body any) (json.RawMessage, error) {
	rec := c.provider.record(c.key)
	if rec == nil {
		// The provider issued this client with a valid record; absence
		// means an explicit logout raced the call.
		var err error
		rec, err = c.provider.refresh(ctx, c.key, c.instance, c.creds, nil)
		if err != nil {
			return nil, err
		}
	}

	status, respBody, err := c.roundTrip(ctx, method, apiPath, query, body, rec.AccessToken)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		rec, err = c.provider.refresh(ctx, c.key, c.instance, c.creds, rec)
		if err != nil {
			return nil, err
		}
		status, respBody, err = c.roundTrip(ctx, method, apiPath, query, body, rec.AccessToken)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &result.AuthenticationError{
				Instance: c.instance,
				Reason:   "request unauthorized after token refresh",
			}
		}
	}

	if status < 200 || status >= 300 {
		return nil, &result.UpstreamError{Status: status, Detail: upstreamDetail(respBody)}
	}
	if len(respBody) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) roundTrip(ctx context.Context, method, apiPath string, query url.Values, body any, token string) (int, []byte, error) {
	u := c.baseURL + apiPath
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", "snow-flow")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// upstreamDetail extracts the human-readable message from a ServiceNow
// error body ({"error": {"message": ..., "detail": ...}}).
func upstreamDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg := parsed.Error.Message
		if parsed.Error.Detail != "" && parsed.Error.Detail != msg {
			if msg != "" {
				msg += ": "
			}
			msg += parsed.Error.Detail
		}
		if msg != "" {
			return msg
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// Result unwraps the standard ServiceNow response envelope
// ({"result": ...}) into out.
func Result(raw json.RawMessage, out any) error {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if len(envelope.Result) == 0 {
		return json.Unmarshal(raw, out)
	}
	return json.Unmarshal(envelope.Result, out)
}
