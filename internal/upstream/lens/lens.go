// Package lens looks up Lens Protocol profiles owned by an Ethereum
// wallet via Lens's public GraphQL API, in the same gql POST style as
// internal/upstream/thegraph.
package lens

import (
	"bytes"
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

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type profile struct {
	Handle string `json:"handle"`
}

type profilesResponse struct {
	Data struct {
		Profiles struct {
			Items []profile `json:"items"`
		} `json:"profiles"`
	} `json:"data"`
}

// Fetcher resolves the set of Lens handles owned by an Ethereum
// wallet, each producing an Identity plus a Hold edge back to the
// owning wallet (Lens handles are ownable and carry a reverse flag,
// but this fetcher emits no reverse Resolve edge for them; spec §3).
type Fetcher struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string, timeout time.Duration) *Fetcher {
	return &Fetcher{Endpoint: endpoint, HTTP: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherLens }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceLens }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	const q = `query ProfilesByOwner($owner: EthereumAddress!){
		profiles(request: { ownedBy: [$owner] }) { items { handle } }
	}`
	body, err := json.Marshal(gqlRequest{Query: q, Variables: map[string]any{"owner": t.Identity}})
	if err != nil {
		return upstream.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(body))
	if err != nil {
		return upstream.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.HTTP.Do(req)
	if err != nil {
		log.Warn("lens fetch failed", "wallet", t.Identity, "err", err)
		return upstream.Result{}, nil
	}
	defer resp.Body.Close()

	var parsed profilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return upstream.Result{}, errors.Wrap(err, "decode lens response")
	}

	now := time.Now()
	wallet := strings.ToLower(t.Identity)
	walletIdentity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)

	var res upstream.Result
	res.Identities = append(res.Identities, walletIdentity)
	for _, p := range parsed.Data.Profiles.Items {
		handle := strings.ToLower(p.Handle)
		lensIdentity := *domain.NewIdentity(domain.PlatformLens, handle, now)
		res.Identities = append(res.Identities, lensIdentity)
		hold := domain.NewHold(walletIdentity.PrimaryKey(), lensIdentity.PrimaryKey(), domain.DataSourceLens, domain.DataFetcherLens, handle, now)
		res.Holds = append(res.Holds, *hold)
		res.Next = append(res.Next, upstream.NewIdentityTarget(domain.PlatformLens, handle))
	}
	return res, nil
}
