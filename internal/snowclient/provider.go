// Package snowclient produces HTTP clients bound to a ServiceNow instance
// and backed by a valid OAuth access token. Token acquisition and refresh
// are transparent to handlers; refreshes are single-flight per
// (instance, credentialRef) key because ServiceNow may rotate the refresh
// token on every exchange, so a duplicate concurrent refresh can invalidate
// the credential, not just waste a round trip.
package snowclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/groeimetai/snow-flow/internal/httpcache"
	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/result"
)

// Credentials is the externally supplied material for one instance. The
// provider never persists any of it; persistence is the configuration
// layer's concern.
type Credentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Username     string
	Password     string
}

// CredentialRecord is the cached token state for one (instance,
// credentialRef) key. Records are immutable once stored; a refresh swaps
// the whole record atomically.
type CredentialRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// expiringSoon reports whether the record needs a refresh before use. The
// skew keeps a token from expiring mid-request.
func (r *CredentialRecord) expiringSoon(now time.Time) bool {
	return !now.Add(30 * time.Second).Before(r.ExpiresAt)
}

// Provider owns the credential cache and builds authenticated clients.
type Provider struct {
	instances map[string]Credentials

	records sync.Map // cache key -> *CredentialRecord
	flight  singleflight.Group

	httpc    *http.Client // token endpoint exchanges
	dataHTTP *http.Client // data calls, shared by issued clients
	logger   *zap.Logger
	now      func() time.Time

	exchangeCount sync.Map // cache key -> *atomic.Int64, observability for diagnostics
}

// NewProvider creates a provider for the configured instances.
func NewProvider(instances map[string]Credentials, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		instances: instances,
		httpc:     &http.Client{Timeout: 30 * time.Second},
		dataHTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: httpcache.NewTransportFromEnv(nil),
		},
		logger: logger,
		now:    time.Now,
	}
}

func cacheKey(instance, credentialRef string) string {
	return instance + "\x00" + credentialRef
}

// GetClient returns a client for the execution context's target instance,
// acquiring or refreshing the access token if needed. Reads of a valid
// cached record take no lock; only an absent or expiring record enters the
// single-flight refresh path.
func (p *Provider) GetClient(ctx context.Context, execCtx registry.ExecutionContext) (*Client, error) {
	creds, ok := p.instances[execCtx.TargetInstance]
	if !ok {
		return nil, &result.AuthenticationError{
			Instance: execCtx.TargetInstance,
			Reason:   "no credentials configured for instance",
		}
	}

	key := cacheKey(execCtx.TargetInstance, execCtx.CredentialRef)
	rec := p.record(key)
	if rec == nil || rec.expiringSoon(p.now()) {
		var err error
		rec, err = p.refresh(ctx, key, execCtx.TargetInstance, creds, rec)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		provider: p,
		key:      key,
		instance: execCtx.TargetInstance,
		creds:    creds,
		baseURL:  strings.TrimRight(creds.BaseURL, "/"),
		httpc:    p.dataHTTP,
	}, nil
}

// Logout destroys the cached record for the key. The next GetClient
// performs a fresh exchange.
func (p *Provider) Logout(instance, credentialRef string) {
	p.records.Delete(cacheKey(instance, credentialRef))
}

func (p *Provider) record(key string) *CredentialRecord {
	if v, ok := p.records.Load(key); ok {
		return v.(*CredentialRecord)
	}
	return nil
}

// refresh performs the token exchange for the key, deduplicating
// concurrent callers. The exchange runs detached from any single caller's
// context: a caller that gives up must not cancel a refresh that other
// waiters on the same key depend on. stale is the record the caller found
// unusable (nil if there was none); a current record that differs from it
// was produced by another caller's refresh and is reused without a new
// exchange.
func (p *Provider) refresh(ctx context.Context, key, instance string, creds Credentials, stale *CredentialRecord) (*CredentialRecord, error) {
	v, err, _ := p.flight.Do(key, func() (any, error) {
		if rec := p.record(key); rec != nil && rec != stale && !rec.expiringSoon(p.now()) {
			return rec, nil
		}

		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		prior := p.record(key)
		rec, err := p.exchange(exchangeCtx, instance, creds, prior)
		if err != nil {
			// Never cache a partial record; the stale one (if any) stays
			// until an exchange succeeds or logout removes it.
			return nil, err
		}

		p.records.Store(key, rec)
		p.bumpExchangeCount(key)
		p.logger.Debug("token exchange complete",
			zap.String("instance", instance),
			zap.Time("expires_at", rec.ExpiresAt),
		)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CredentialRecord), nil
}

// tokenResponse is the ServiceNow /oauth_token.do response body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// exchange performs one grant against the instance's token endpoint.
// Preference order: the rotating refresh token from the prior record, the
// statically configured refresh token, then the password grant.
func (p *Provider) exchange(ctx context.Context, instance string, creds Credentials, prior *CredentialRecord) (*CredentialRecord, error) {
	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	refreshToken := creds.RefreshToken
	if prior != nil && prior.RefreshToken != "" {
		refreshToken = prior.RefreshToken
	}

	switch {
	case refreshToken != "":
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
	case creds.Username != "":
		form.Set("grant_type", "password")
		form.Set("username", creds.Username)
		form.Set("password", creds.Password)
	default:
		return nil, &result.AuthenticationError{
			Instance: instance,
			Reason:   "no refresh token or username configured",
		}
	}

	endpoint := strings.TrimRight(creds.BaseURL, "/") + "/oauth_token.do"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &result.AuthenticationError{Instance: instance, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, &result.AuthenticationError{Instance: instance, Reason: "token endpoint unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &result.AuthenticationError{Instance: instance, Reason: "token response read failed: " + err.Error()}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &result.AuthenticationError{
			Instance: instance,
			Reason:   fmt.Sprintf("token endpoint returned status %d with unparseable body", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		reason := tok.ErrorDesc
		if reason == "" {
			reason = tok.Error
		}
		if reason == "" {
			reason = fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)
		}
		return nil, &result.AuthenticationError{Instance: instance, Reason: reason}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 1800
	}
	rec := &CredentialRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    p.now().Add(time.Duration(expiresIn) * time.Second),
	}
	if rec.RefreshToken == "" && refreshToken != "" {
		// Instance did not rotate the refresh token; keep the working one.
		rec.RefreshToken = refreshToken
	}
	return rec, nil
}

// bumpExchangeCount is called inside the single-flight, but the counters
// are read by Stats from arbitrary goroutines, so the slots are atomic.
func (p *Provider) bumpExchangeCount(key string) {
	v, _ := p.exchangeCount.LoadOrStore(key, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

// CacheStat describes one cached credential for diagnostics. No token
// material is exposed.
type CacheStat struct {
	Instance      string    `json:"instance"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Expired       bool      `json:"expired"`
	HasRefresh    bool      `json:"hasRefreshToken"`
	ExchangeCount int64     `json:"exchangeCount"`
}

// Stats returns a snapshot of the credential cache, sorted by instance.
func (p *Provider) Stats() []CacheStat {
	now := p.now()
	var stats []CacheStat
	p.records.Range(func(k, v any) bool {
		key := k.(string)
		rec := v.(*CredentialRecord)
		instance, _, _ := strings.Cut(key, "\x00")
		var exchanges int64
		if c, ok := p.exchangeCount.Load(key); ok {
			exchanges = c.(*atomic.Int64).Load()
		}
		stats = append(stats, CacheStat{
			Instance:      instance,
			ExpiresAt:     rec.ExpiresAt,
			Expired:       rec.expiringSoon(now),
			HasRefresh:    rec.RefreshToken != "",
			ExchangeCount: exchanges,
		})
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Instance < stats[j].Instance })
	return stats
}
