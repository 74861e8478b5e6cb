package stub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"testbay/pkg/logging"
	"testbay/pkg/restclient"
)

// Admin talks to the WireMock admin API.
type Admin struct {
	client   *restclient.Client
	maxRetry time.Duration
}

// NewAdmin creates an admin client for a WireMock server at baseURL
// ("http://localhost:32768").
func NewAdmin(baseURL string, opts ...restclient.ClientOption) (*Admin, error) {
	client, err := restclient.New(baseURL+"/__admin", opts...)
	if err != nil {
		return nil, err
	}
	return &Admin{client: client, maxRetry: 5 * time.Second}, nil
}

// SubmitMapping registers a mapping and returns its id.
func (a *Admin) SubmitMapping(ctx context.Context, m Mapping) (string, error) {
	var created Mapping
	if err := a.call(ctx, http.MethodPost, "/mappings", m, &created); err != nil {
		return "", fmt.Errorf("failed to submit mapping for %s%s: %w", m.Request.URL, m.Request.URLPath, err)
	}
	return created.ID, nil
}

// ResetMappings removes every mapping that was not loaded from files.
func (a *Admin) ResetMappings(ctx context.Context) error {
	if err := a.call(ctx, http.MethodPost, "/mappings/reset", nil, nil); err != nil {
		return fmt.Errorf("failed to reset mappings: %w", err)
	}
	return nil
}

// DeleteAllRequests empties the request journal.
func (a *Admin) DeleteAllRequests(ctx context.Context) error {
	if err := a.call(ctx, http.MethodDelete, "/requests", nil, nil); err != nil {
		return fmt.Errorf("failed to clear request journal: %w", err)
	}
	return nil
}

// Requests returns the request journal, most recent first.
func (a *Admin) Requests(ctx context.Context) ([]LoggedRequest, error) {
	var journal requestJournal
	if err := a.call(ctx, http.MethodGet, "/requests", nil, &journal); err != nil {
		return nil, fmt.Errorf("failed to read request journal: %w", err)
	}
	return journal.Requests, nil
}

// RequestsFor returns the journal entries answered by the mapping with id.
func (a *Admin) RequestsFor(ctx context.Context, id string) ([]LoggedRequest, error) {
	all, err := a.Requests(ctx)
	if err != nil {
		return nil, err
	}
	var matched []LoggedRequest
	for _, r := range all {
		if r.MatchedBy(id) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// call retries transport errors and 5xx answers; 4xx answers are final.
func (a *Admin) call(ctx context.Context, method, path string, in, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := a.client.Do(ctx, method, path, in, out)
		var se *restclient.StatusError
		if errors.As(err, &se) && !restclient.IsServerError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(a.maxRetry),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Debug(subsystem, "%s %s failed (%v), retrying in %s", method, path, err, next)
		}),
	)
	return err
}
