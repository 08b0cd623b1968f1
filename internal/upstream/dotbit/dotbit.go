// Package dotbit resolves .bit accounts owned by an Ethereum wallet
// via dotbit's public "reverse record" REST API.
package dotbit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

type accountListResponse struct {
	Data struct {
		Accounts []struct {
			Account string `json:"account"`
		} `json:"accounts"`
	} `json:"data"`
}

// Fetcher resolves the .bit accounts owned by an Ethereum wallet,
// each producing an Identity plus a Hold edge back to the wallet.
type Fetcher struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string, timeout time.Duration) *Fetcher {
	return &Fetcher{Endpoint: endpoint, HTTP: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherDotbit }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceDotbit }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	url := strings.TrimRight(f.Endpoint, "/") + "/v1/reverse/record?key_info.key=" + strings.ToLower(t.Identity) + "&key_info.coin_type=60"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return upstream.Result{}, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		log.Warn("dotbit fetch failed", "wallet", t.Identity, "err", err)
		return upstream.Result{}, nil
	}
	defer resp.Body.Close()

	var parsed accountListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return upstream.Result{}, errors.Wrap(err, "decode dotbit response")
	}

	now := time.Now()
	wallet := strings.ToLower(t.Identity)
	walletIdentity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)

	var res upstream.Result
	res.Identities = append(res.Identities, walletIdentity)
	for _, a := range parsed.Data.Accounts {
		account := strings.ToLower(a.Account)
		dotbitIdentity := *domain.NewIdentity(domain.PlatformDotbit, account, now)
		res.Identities = append(res.Identities, dotbitIdentity)
		hold := domain.NewHold(walletIdentity.PrimaryKey(), dotbitIdentity.PrimaryKey(), domain.DataSourceDotbit, domain.DataFetcherDotbit, account, now)
		res.Holds = append(res.Holds, *hold)
		res.Next = append(res.Next, upstream.NewIdentityTarget(domain.PlatformDotbit, account))
	}
	return res, nil
}
