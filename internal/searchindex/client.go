// Package searchindex provides idempotent document operations against the
// OpenSearch cluster.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/inkdex/search-sync/internal/logging"
	"github.com/inkdex/search-sync/internal/retry"
	"github.com/inkdex/search-sync/internal/secrets"
)

var logger = logging.New()

// RefreshPolicy controls when an upsert becomes visible to reads.
type RefreshPolicy string

const (
	// RefreshWaitFor blocks the write until it is searchable, giving
	// read-after-write consistency at the cost of latency.
	RefreshWaitFor RefreshPolicy = "wait_for"
	// RefreshNone returns as soon as the write is durable.
	RefreshNone RefreshPolicy = "false"
)

// healthTimeout bounds the pre-flight health probe.
const healthTimeout = 5 * time.Second

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialsProvider supplies the cluster's master credential.
type CredentialsProvider interface {
	Get(ctx context.Context) (secrets.Credentials, error)
}

// Health is the cluster state reported by the health probe.
type Health struct {
	Status              string `json:"status"`
	NumberOfNodes       int    `json:"number_of_nodes"`
	ActivePrimaryShards int    `json:"active_primary_shards"`
	ActiveShards        int    `json:"active_shards"`

	// Filled from the index stats when the index exists.
	DocumentCount    int64 `json:"-"`
	IndexSizeInBytes int64 `json:"-"`
}

// Client performs document operations against one index. Transient failures
// (network errors, 429, 5xx) are retried per the client's policy; other
// responses fail immediately.
type Client struct {
	baseURL    string
	index      string
	httpClient HTTPDoer
	creds      CredentialsProvider
	refresh    RefreshPolicy
	policy     retry.Policy
}

// NewClient creates a Client for the given endpoint and index.
func NewClient(baseURL, index string, httpClient HTTPDoer, creds CredentialsProvider, refresh RefreshPolicy) *Client {
	return &Client{
		baseURL:    baseURL,
		index:      index,
		httpClient: httpClient,
		creds:      creds,
		refresh:    refresh,
		policy:     retry.Default,
	}
}

// docURL constructs the document URL for an id.
func (c *Client) docURL(id string) string {
	return c.baseURL + "/" + c.index + "/_doc/" + url.PathEscape(id) + "?refresh=" + string(c.refresh)
}

// Upsert writes or overwrites the document under id. Writing the same
// document to the same id repeatedly leaves the index in the same state.
func (c *Client) Upsert(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}

	return retry.Do(ctx, c.policy, "upsert "+id, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodPut, c.docURL(id), body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return statusError("upsert", id, resp)
	})
}

// Delete removes the document under id. A missing document counts as
// success: the desired end state is already in place.
func (c *Client) Delete(ctx context.Context, id string) error {
	return retry.Do(ctx, c.policy, "delete "+id, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodDelete, c.docURL(id), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			logger.InfoContext(ctx, "Document already absent, treating delete as success",
				slog.String("document_id", id),
			)
			return nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return statusError("delete", id, resp)
	})
}

// Health probes the cluster within a fixed short timeout. Index-level stats
// are best-effort: a cluster without the index yet still reports healthy.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/_cluster/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("cluster health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, statusError("health", "_cluster", resp)
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return Health{}, fmt.Errorf("decode cluster health: %w", err)
	}

	c.fillIndexStats(ctx, &health)
	return health, nil
}

// fillIndexStats adds document count and store size from the index stats.
func (c *Client) fillIndexStats(ctx context.Context, health *Health) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/"+c.index+"/_stats/docs,store", nil)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var stats struct {
		All struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
			} `json:"primaries"`
		} `json:"_all"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return
	}
	health.DocumentCount = stats.All.Primaries.Docs.Count
	health.IndexSizeInBytes = stats.All.Primaries.Store.SizeInBytes
}

// do issues one authenticated request.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	creds, err := c.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch credentials: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	return c.httpClient.Do(req)
}

// statusError classifies a non-success response. 429 and 5xx are transient;
// everything else is permanent.
func statusError(op, id string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s %s: status %d: %s", op, id, resp.StatusCode, bytes.TrimSpace(detail))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return retry.Permanent(err)
}
