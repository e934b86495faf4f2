// Package riot resolves Riot IDs against the Riot account API.
package riot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/reqctx"
)

// maxBody caps how much of a response is read before decoding.
const maxBody = 1 << 20

// Partition is a regional routing value of the account API.
type Partition string

const (
	Americas Partition = "americas"
	Europe   Partition = "europe"
	Asia     Partition = "asia"
)

var partitions = map[model.Region]Partition{
	"na": Americas, "br": Americas, "lan": Americas, "las": Americas,
	"euw": Europe, "eune": Europe, "tr": Europe, "ru": Europe,
	"kr": Asia, "jp": Asia,
}

// PartitionFor maps a platform region to its routing partition. The second
// result is false when the region has no explicit mapping and Americas is
// used instead.
func PartitionFor(r model.Region) (Partition, bool) {
	p, ok := partitions[r]
	if !ok {
		return Americas, false
	}
	return p, true
}

// VerifyError is returned by Resolve. Kind is one of the upstream sentinels
// in package errs.
type VerifyError struct {
	Kind error
	Msg  string
}

func (e *VerifyError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *VerifyError) Unwrap() error { return e.Kind }

func verifyErr(kind error, format string, args ...any) *VerifyError {
	return &VerifyError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

type account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// Client calls the account-v1 endpoint. It never caches and never retries.
type Client struct {
	apiKey   string
	http     *http.Client
	endpoint func(Partition) string
	limiter  *rate.Limiter
	log      *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithEndpoint overrides how a partition is turned into a base URL.
func WithEndpoint(fn func(Partition) string) Option { return func(c *Client) { c.endpoint = fn } }

// WithLimiter paces outgoing requests. Nil disables pacing.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

// WithLogger sets the logger used for operational warnings.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient constructs a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
		endpoint: func(p Partition) string {
			return "https://" + string(p) + ".api.riotgames.com"
		},
		// ~20 requests per second, the personal key short-window budget.
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Resolve looks up name#tag in the partition serving region and returns the
// canonical identity. All failures are *VerifyError.
func (c *Client) Resolve(ctx context.Context, name, tag string, region model.Region) (model.VerifiedIdentity, error) {
	p, ok := PartitionFor(region)
	if !ok {
		c.log.Warn("no partition for region, using fallback", reqctx.Field(ctx),
			zap.String("region", string(region)), zap.String("partition", string(p)))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.VerifiedIdentity{}, verifyErr(errs.ErrTransport, "rate wait: %v", err)
		}
	}

	u := c.endpoint(p) + "/riot/account/v1/accounts/by-riot-id/" + url.PathEscape(name) + "/" + url.PathEscape(tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.VerifiedIdentity{}, verifyErr(errs.ErrTransport, "build request: %v", err)
	}
	req.Header.Set("X-Riot-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.VerifiedIdentity{}, verifyErr(errs.ErrTransport, "%v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return decode(resp.Body)
	case resp.StatusCode == http.StatusNotFound:
		return model.VerifiedIdentity{}, &VerifyError{Kind: errs.ErrUpstreamNotFound}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		c.log.Error("riot api rejected the configured key", reqctx.Field(ctx), zap.Int("status", resp.StatusCode))
		return model.VerifiedIdentity{}, &VerifyError{Kind: errs.ErrUnauthorized}
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.VerifiedIdentity{}, &VerifyError{Kind: errs.ErrRateLimited, Msg: resp.Header.Get("Retry-After")}
	case resp.StatusCode >= 500:
		return model.VerifiedIdentity{}, verifyErr(errs.ErrUpstreamFault, "status %d", resp.StatusCode)
	default:
		return model.VerifiedIdentity{}, verifyErr(errs.ErrTransport, "unexpected status %d", resp.StatusCode)
	}
}

func decode(r io.Reader) (model.VerifiedIdentity, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBody))
	if err != nil {
		return model.VerifiedIdentity{}, verifyErr(errs.ErrTransport, "read body: %v", err)
	}
	var a account
	if err := sonic.Unmarshal(body, &a); err != nil {
		return model.VerifiedIdentity{}, verifyErr(errs.ErrMalformed, "%v", err)
	}
	if a.PUUID == "" || a.GameName == "" || a.TagLine == "" {
		return model.VerifiedIdentity{}, verifyErr(errs.ErrMalformed, "incomplete account payload")
	}
	return model.VerifiedIdentity{PUUID: a.PUUID, GameName: a.GameName, TagLine: a.TagLine}, nil
}
