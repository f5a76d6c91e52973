package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// HTTPRequestHandler performs an outbound HTTP call. URL, headers and string
// bodies are interpolated against the input, which lets credential
// placeholders land in Authorization headers.
type HTTPRequestHandler struct {
	client *http.Client
}

// NewHTTPRequest creates the httpRequest handler with the configured connect
// timeout. Per-request read deadlines come from node parameters.
func NewHTTPRequest(cfg config.HTTPConfig) *HTTPRequestHandler {
	return &HTTPRequestHandler{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
	}
}

func (h *HTTPRequestHandler) NodeType() string {
	return models.TypeHTTPRequest
}

func (h *HTTPRequestHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	method := models.GetString(p, "method", http.MethodGet)
	rawURL := interp.Interpolate(ctx, models.GetString(p, "url", ""), input, ec.Credentials())
	headers := models.GetMap(p, "headers")
	queryParams := models.GetMap(p, "queryParams")
	timeout := ec.Settings().GetDuration(config.KeyHTTPReadTimeoutMs, 30*time.Second)
	if ms := models.GetInt(p, "timeoutMs", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	failOnError := models.GetBool(p, "failOnError", true)

	if rawURL == "" {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "httpRequest node %s has no url", node.ID)
	}

	body, contentType, err := h.encodeBody(ctx, p["body"], input, ec)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, err, "invalid request")
	}

	if len(queryParams) > 0 {
		q := req.URL.Query()
		for k, v := range queryParams {
			q.Set(k, interp.Interpolate(ctx, fmt.Sprintf("%v", v), input, ec.Credentials()))
		}
		req.URL.RawQuery = q.Encode()
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, interp.Interpolate(ctx, fmt.Sprintf("%v", v), input, ec.Credentials()))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, flowerr.New(flowerr.KindTimeout, "request to %s timed out after %s", req.URL.Host, timeout)
		}
		if ctx.Err() != nil {
			return nil, flowerr.Wrap(flowerr.KindCancelled, ctx.Err(), "request cancelled")
		}
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, err, "request to %s failed", req.URL.Host)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, err, "failed to read response body")
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !success && failOnError {
		return nil, flowerr.External(resp.StatusCode, string(respBody), "%s %s returned %d", method, req.URL.Redacted(), resp.StatusCode)
	}

	out := models.Clone(input)
	out["statusCode"] = resp.StatusCode
	out["success"] = success
	out["headers"] = flattenHeaders(resp.Header)
	out["body"] = decodeBody(respBody)
	return out, nil
}

// encodeBody turns the body parameter into a reader: maps and lists are
// JSON-encoded, strings are interpolated and sent raw.
func (h *HTTPRequestHandler) encodeBody(ctx context.Context, raw any, input models.M, ec *engine.ExecutionContext) (io.Reader, string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, "", nil
	case string:
		if v == "" {
			return nil, "", nil
		}
		return bytes.NewBufferString(interp.Interpolate(ctx, v, input, ec.Credentials())), "", nil
	default:
		resolved := interp.InterpolateValue(ctx, v, input, ec.Credentials())
		encoded, err := json.Marshal(resolved)
		if err != nil {
			return nil, "", flowerr.Wrap(flowerr.KindHandlerFailure, err, "failed to encode request body")
		}
		return bytes.NewBuffer(encoded), "application/json", nil
	}
}

// decodeBody parses JSON responses into the data bus; anything else stays a
// string.
func decodeBody(body []byte) any {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded
	}
	return string(body)
}

func flattenHeaders(h http.Header) models.M {
	out := models.M{}
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
