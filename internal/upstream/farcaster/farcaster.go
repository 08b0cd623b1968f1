// Package farcaster resolves the Farcaster FID owned by an Ethereum
// custody address via the public Farcaster hub HTTP API.
package farcaster

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

type idRegistryResponse struct {
	Fid         int64  `json:"fid"`
	CustodyAddr string `json:"custodyAddress"`
}

// Fetcher resolves the Farcaster FID associated with an Ethereum
// custody wallet. Farcaster identities are ownable but have no
// reverse/primary-domain flag (spec §3), so ownership surfaces as a
// Hold edge rather than a Resolve edge.
type Fetcher struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string, timeout time.Duration) *Fetcher {
	return &Fetcher{Endpoint: endpoint, HTTP: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherFarcaster }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceFarcaster }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	url := strings.TrimRight(f.Endpoint, "/") + "/v1/onChainIdRegistryEventByAddress?address=" + strings.ToLower(t.Identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return upstream.Result{}, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		log.Warn("farcaster fetch failed", "wallet", t.Identity, "err", err)
		return upstream.Result{}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return upstream.Result{}, nil
	}

	var parsed idRegistryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return upstream.Result{}, errors.Wrap(err, "decode farcaster response")
	}
	if parsed.Fid == 0 {
		return upstream.Result{}, nil
	}

	now := time.Now()
	wallet := strings.ToLower(t.Identity)
	walletIdentity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)
	fid := strconv.FormatInt(parsed.Fid, 10)
	fcIdentity := *domain.NewIdentity(domain.PlatformFarcaster, fid, now)

	hold := domain.NewHold(walletIdentity.PrimaryKey(), fcIdentity.PrimaryKey(), domain.DataSourceFarcaster, domain.DataFetcherFarcaster, fid, now)

	return upstream.Result{
		Identities: []domain.Identity{walletIdentity, fcIdentity},
		Holds:      []domain.Hold{*hold},
		Next:       []upstream.Target{upstream.NewIdentityTarget(domain.PlatformFarcaster, fid)},
	}, nil
}
