// Package edgeconfig persists the pet in a Vercel Edge Config item. Reads go to
// the Edge Config endpoint named by the connection string; writes go through
// the Vercel REST API, which needs a separate config ID and API token.
package edgeconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	apperrors "github.com/alessandrobessi/tamagotchi/internal/platform/errors"
	"github.com/alessandrobessi/tamagotchi/internal/platform/retry"
	"github.com/jonboulle/clockwork"
)

// DefaultAPIBaseURL is the Vercel REST API used for writes.
const DefaultAPIBaseURL = "https://api.vercel.com"

const (
	requestTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrNotConfigured is returned by Save when the write credentials are missing.
var ErrNotConfigured = errors.New("edge config write credentials not configured")

type Config struct {
	// ConnectionString is the EDGE_CONFIG value, for example
	// https://edge-config.vercel.com/ecfg_abc?token=xyz. Empty disables reads.
	ConnectionString string
	ConfigID         string
	APIToken         string
	Key              string
	// APIBaseURL overrides DefaultAPIBaseURL.
	APIBaseURL string
}

type Store struct {
	readURL   string
	readToken string
	writeURL  string
	apiToken  string
	key       string
	client    *http.Client
	policy    retry.Policy
}

var _ domain.PetStore = (*Store)(nil)

// New validates the connection string but tolerates missing credentials: the
// store degrades to not-found reads and skipped writes.
func New(cfg Config, client *http.Client, clock clockwork.Clock) (*Store, error) {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	s := &Store{
		apiToken: cfg.APIToken,
		key:      cfg.Key,
		client:   client,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   200 * time.Millisecond,
			RateLimitBackoff: time.Second,
			MaxBackoff:       2 * time.Second,
			Clock:            clock,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Edge Config request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}

	if cfg.ConnectionString != "" {
		base, token, err := parseConnectionString(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		s.readURL = base + "/item/" + url.PathEscape(cfg.Key)
		s.readToken = token
	}

	if cfg.ConfigID != "" {
		apiBase := cfg.APIBaseURL
		if apiBase == "" {
			apiBase = DefaultAPIBaseURL
		}
		s.writeURL = strings.TrimRight(apiBase, "/") + "/v1/edge-config/" + url.PathEscape(cfg.ConfigID) + "/items"
	}

	return s, nil
}

func parseConnectionString(raw string) (base, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid EDGE_CONFIG connection string: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid EDGE_CONFIG connection string: missing scheme or host")
	}
	token = u.Query().Get("token")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), token, nil
}

// CanRead reports whether a connection string was supplied.
func (s *Store) CanRead() bool { return s.readURL != "" }

// CanWrite reports whether both write credentials were supplied.
func (s *Store) CanWrite() bool { return s.writeURL != "" && s.apiToken != "" }

func (s *Store) Load(ctx context.Context) (domain.Pet, error) {
	if !s.CanRead() {
		return domain.Pet{}, domain.ErrPetNotFound
	}

	pet, err := retry.Do(ctx, s.policy, classify, func() (*domain.Pet, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return domain.Pet{}, fmt.Errorf("edge config load: %w", err)
	}
	if pet == nil {
		return domain.Pet{}, domain.ErrPetNotFound
	}
	return *pet, nil
}

func (s *Store) fetch(ctx context.Context) (*domain.Pet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.readURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if s.readToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.readToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edge config read: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "edge config read failed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read edge config response: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}

	var pet domain.Pet
	if err := json.Unmarshal(body, &pet); err != nil {
		return nil, apperrors.ExternalError("edge config returned a malformed pet", err)
	}
	return &pet, nil
}

type patchItem struct {
	Operation string     `json:"operation"`
	Key       string     `json:"key"`
	Value     domain.Pet `json:"value"`
}

type patchRequest struct {
	Items []patchItem `json:"items"`
}

func (s *Store) Save(ctx context.Context, pet domain.Pet) error {
	if !s.CanWrite() {
		slog.ErrorContext(ctx, "Missing EDGE_CONFIG_ID or VERCEL_API_TOKEN, pet not saved")
		return ErrNotConfigured
	}

	body, err := json.Marshal(patchRequest{
		Items: []patchItem{{Operation: "upsert", Key: s.key, Value: pet}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode edge config patch: %w", err)
	}

	err = retry.DoVoid(ctx, s.policy, classify, func() error {
		return s.patch(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("edge config save: %w", err)
	}
	return nil
}

func (s *Store) patch(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.writeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge config write: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, "edge config write failed")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(resp *http.Response, message string) *apperrors.Error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return apperrors.ExternalError(message, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))).
		WithContext("status", resp.StatusCode)
}

// classify retries network failures, 5xx and 429; every other status is permanent.
func classify(err error) retry.Action {
	structured, ok := errors.AsType[*apperrors.Error](err)
	if !ok {
		return retry.Retry
	}
	status, ok := structured.Context["status"].(int)
	if !ok {
		return retry.Stop
	}
	switch {
	case status == http.StatusTooManyRequests:
		return retry.After
	case status >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}
