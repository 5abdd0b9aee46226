// Package jwks provides a signing key source backed by a JSON Web Key Set.
//
// Keys are fetched from a standard JWKS endpoint (RFC 7517) and kept in a
// snapshot that is swapped whole on refresh. A restored session can then be
// checked against the API's signing keys without a login round trip.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/chimerakang/changedesk/token"
)

// DefaultRefreshInterval is how long a fetched key set is trusted.
const DefaultRefreshInterval = time.Hour

// ErrNoKeys is returned when the endpoint serves no usable RSA signing key.
var ErrNoKeys = errors.New("changedesk/jwks: no RSA signing keys in set")

// Verifier is a cached RSA key source for token.Decoder.
type Verifier struct {
	url      string
	rc       *resty.Client
	interval time.Duration
	now      func() time.Time

	snap    atomic.Pointer[snapshot]
	fetches singleflight.Group
}

var _ token.KeyfuncSource = (*Verifier)(nil)

type snapshot struct {
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithHTTPClient sets the HTTP client used to fetch the key set.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.rc = resty.NewWithClient(c) }
}

// WithRefreshInterval sets how long fetched keys are used before refetching.
func WithRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.interval = d }
}

// WithClock sets the time source for cache aging.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a key source reading from jwksURL.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		url:      jwksURL,
		interval: DefaultRefreshInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	if v.rc == nil {
		v.rc = resty.New().SetTimeout(10 * time.Second)
	}
	return v
}

// Keyfunc returns a jwt.Keyfunc resolving the token's kid against the key set.
func (v *Verifier) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("changedesk/jwks: unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	}
}

// key resolves kid, refetching the set when the snapshot is old or lacks kid.
// A stale key is still returned if the refetch fails.
func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	cur := v.snap.Load()
	cached := pick(cur, kid)
	if cached != nil && v.now().Sub(cur.fetched) <= v.interval {
		return cached, nil
	}

	next, err := v.refresh(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	if k := pick(next, kid); k != nil {
		return k, nil
	}
	return nil, fmt.Errorf("changedesk/jwks: key not found for kid %q", kid)
}

// pick returns the key for kid, or any key when kid is empty.
func pick(s *snapshot, kid string) *rsa.PublicKey {
	if s == nil {
		return nil
	}
	if k, ok := s.keys[kid]; ok {
		return k
	}
	if kid == "" {
		for _, k := range s.keys {
			return k
		}
	}
	return nil
}

// refresh fetches the set once for all concurrent callers.
func (v *Verifier) refresh(ctx context.Context) (*snapshot, error) {
	res, err, _ := v.fetches.Do("jwks", func() (any, error) {
		return v.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(*snapshot), nil
}

func (v *Verifier) fetch(ctx context.Context) (*snapshot, error) {
	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	resp, err := v.rc.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&set).
		Get(v.url)
	if err != nil {
		return nil, fmt.Errorf("changedesk/jwks: fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("changedesk/jwks: fetch returned status %d", resp.StatusCode())
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !k.signing() {
			continue
		}
		if pub, err := k.publicKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	s := &snapshot{keys: keys, fetched: v.now()}
	v.snap.Store(s)
	return s, nil
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jsonWebKey) signing() bool {
	return k.Kty == "RSA" && (k.Use == "" || k.Use == "sig")
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 2 {
		return nil, fmt.Errorf("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
