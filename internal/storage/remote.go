package storage

// Remote is an HTTP object-store client, grounded on the teacher's
// gateway-backed Pin/Retrieve pair in core/storage.go: a context-scoped
// http.Client call per operation, status-code checking, and a bounded
// error-body read on failure.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const remoteErrorBodyLimit = 256

// Remote talks to an HTTP object store exposing GET/PUT/DELETE on
// /objects/{key}. It is always Eventual consistency: the façade makes no
// claim about how quickly a write becomes visible to a subsequent read
// against the same remote service.
type Remote struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRemote constructs a Remote backend under the given façade name,
// talking to baseURL.
func NewRemote(name, baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{name: name, baseURL: baseURL, client: client}
}

func (r *Remote) Name() string { return r.name }

func (r *Remote) objectURL(key string) string {
	return r.baseURL + "/objects/" + url.PathEscape(key)
}

func (r *Remote) Get(ctx context.Context, key string, _ Consistency) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.objectURL(key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remoteStatusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (r *Remote) Put(ctx context.Context, key string, value []byte, _ Consistency) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.objectURL(key), bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return remoteStatusError(resp)
	}
	return nil
}

func (r *Remote) Delete(ctx context.Context, key string, _ Consistency) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.objectURL(key), nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return remoteStatusError(resp)
	}
	return nil
}

func (r *Remote) Shutdown(_ context.Context) error {
	r.client.CloseIdleConnections()
	return nil
}

func remoteStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, remoteErrorBodyLimit))
	return fmt.Errorf("storage: remote %s %s: %s", resp.Request.Method, resp.Status, string(body))
}
