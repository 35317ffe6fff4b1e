package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// GammaAPIBaseURL is the Polymarket Gamma API endpoint.
const GammaAPIBaseURL = "https://gamma-api.polymarket.com"

// ErrWalletNotFound is returned when no profile matches a handle.
var ErrWalletNotFound = errors.New("wallet not found")

// IsAddress reports whether s is already a 0x-prefixed wallet address.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

type searchResponse struct {
	Profiles []struct {
		Pseudonym   string `json:"pseudonym"`
		ProxyWallet string `json:"proxyWallet"`
	} `json:"profiles"`
}

// Resolver maps public handles to proxy wallets via Gamma public search.
type Resolver struct {
	restClient
}

// NewResolver creates a resolver.
func NewResolver(baseURL string, opts ...Option) *Resolver {
	if baseURL == "" {
		baseURL = GammaAPIBaseURL
	}
	return &Resolver{restClient: newRESTClient(baseURL, opts)}
}

// Resolve returns the wallet for handle. Addresses are returned unchanged
// without a request.
func (r *Resolver) Resolve(ctx context.Context, handle string) (string, error) {
	if IsAddress(handle) {
		return handle, nil
	}

	q := url.Values{}
	q.Set("q", handle)

	var resp searchResponse
	if err := r.getJSON(ctx, "/public-search", q, &resp); err != nil {
		return "", fmt.Errorf("search %q: %w", handle, err)
	}

	for _, p := range resp.Profiles {
		if strings.EqualFold(p.Pseudonym, handle) && p.ProxyWallet != "" {
			return p.ProxyWallet, nil
		}
	}
	return "", fmt.Errorf("%q: %w", handle, ErrWalletNotFound)
}
