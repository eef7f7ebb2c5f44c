package chambermaster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is used when neither the chamber nor configuration names one.
const DefaultBaseURL = "http://secure2.chambermaster.com/api"

// DefaultTimeout bounds every live directory request.
const DefaultTimeout = 30 * time.Second

// HTTPDirectory talks to the live ChamberMaster API.
type HTTPDirectory struct {
	DefaultBaseURL string
	HTTPClient     *http.Client
}

// NewHTTPDirectory creates a live directory client. A zero timeout uses DefaultTimeout.
func NewHTTPDirectory(defaultBaseURL string, timeout time.Duration) *HTTPDirectory {
	if defaultBaseURL == "" {
		defaultBaseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDirectory{
		DefaultBaseURL: strings.TrimRight(defaultBaseURL, "/"),
		HTTPClient:     &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) baseURL(acct Account) string {
	if acct.BaseURL != "" {
		return strings.TrimRight(acct.BaseURL, "/")
	}
	return d.DefaultBaseURL
}

// FetchDetailed calls GET /associations({id})/members/details.
func (d *HTTPDirectory) FetchDetailed(ctx context.Context, acct Account) ([]DetailedMember, error) {
	endpoint := fmt.Sprintf("%s/associations(%s)/members/details", d.baseURL(acct), url.PathEscape(acct.ID))

	var members []DetailedMember
	if err := d.get(ctx, "fetch member details", endpoint, acct.APIKey, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// FetchList calls GET /associations({id})/members/, optionally with a status $filter.
func (d *HTTPDirectory) FetchList(ctx context.Context, acct Account, statusFilter *Status) ([]ListMember, error) {
	endpoint := fmt.Sprintf("%s/associations(%s)/members/", d.baseURL(acct), url.PathEscape(acct.ID))
	if statusFilter != nil {
		endpoint += fmt.Sprintf("?$filter=Status+eq+%d", int(*statusFilter))
	}

	var members []ListMember
	if err := d.get(ctx, "fetch member list", endpoint, acct.APIKey, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (d *HTTPDirectory) get(ctx context.Context, op, endpoint, apiKey string, out interface{}) error {
	fail := func(reason string, cause error) error {
		slog.WarnContext(ctx, "directory request failed", "op", op, "reason", reason, "error", cause)
		return &RequestError{Op: op, Reason: reason, Cause: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail("invalid request", err)
	}
	req.Header.Set("X-ApiKey", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return fail("transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fail(fmt.Sprintf("http status %d", resp.StatusCode),
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail("invalid response body", err)
	}
	return nil
}
