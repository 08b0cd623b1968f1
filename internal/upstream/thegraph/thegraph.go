// Package thegraph fetches ENS ownership via The Graph's ENS subgraph,
// ported from original_source/src/upstream/the_graph/mod.rs's
// fetch_ens_by_eth_wallet / fetch_eth_wallet_by_ens.
package thegraph

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

const ensContractAddress = "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1"

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type resolvedAddress struct {
	ID string `json:"id"`
}

type domainRow struct {
	Name            string           `json:"name"`
	ResolvedAddress *resolvedAddress `json:"resolvedAddress"`
}

type ensQueryResponse struct {
	Data struct {
		Domains []domainRow `json:"domains"`
	} `json:"data"`
}

// Fetcher queries the ENS subgraph for ownership of ENS names by an
// Ethereum wallet, and the reverse: which wallet owns a given ENS name.
type Fetcher struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string, timeout time.Duration) *Fetcher {
	return &Fetcher{Endpoint: endpoint, HTTP: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherTheGraph }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceTheGraph }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	if t.Kind == upstream.TargetIdentity {
		return t.Platform == domain.PlatformEthereum
	}
	return t.Kind == upstream.TargetNFT && t.Chain == domain.ChainEthereum && t.ContractAddress == ensContractAddress
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	if t.Kind == upstream.TargetIdentity {
		return f.fetchByWallet(ctx, t.Identity)
	}
	return f.fetchByENS(ctx, t.TokenID)
}

func (f *Fetcher) query(ctx context.Context, query string, vars map[string]any) (ensQueryResponse, error) {
	var out ensQueryResponse
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return out, errors.Wrap(err, "the graph request")
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.Wrap(err, "decode the graph response")
	}
	return out, nil
}

func (f *Fetcher) fetchByWallet(ctx context.Context, wallet string) (upstream.Result, error) {
	const q = `query EnsByOwnerAddress($addr: String!){
		domains(where: { owner: $addr}) { name resolvedAddress { id } }
	}`
	resp, err := f.query(ctx, q, map[string]any{"addr": strings.ToLower(wallet)})
	if err != nil {
		log.Warn("thegraph fetch by wallet failed", "wallet", wallet, "err", err)
		return upstream.Result{}, nil
	}

	now := time.Now()
	var res upstream.Result
	identity := *domain.NewIdentity(domain.PlatformEthereum, strings.ToLower(wallet), now)
	contract := *domain.NewContract(domain.ChainEthereum, domain.ContractCategoryENS, ensContractAddress, now)
	res.Identities = append(res.Identities, identity)
	res.Contracts = append(res.Contracts, contract)

	for _, d := range resp.Data.Domains {
		if d.ResolvedAddress == nil || !strings.EqualFold(d.ResolvedAddress.ID, wallet) {
			continue
		}
		hold := domain.NewHold(identity.PrimaryKey(), contract.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherTheGraph, d.Name, now)
		res.Holds = append(res.Holds, *hold)
		// Forward resolve: Contract(ENS) -> Identity(Ethereum), "this
		// name resolves to this wallet" (spec §3).
		resolve := domain.NewResolve(contract.PrimaryKey(), identity.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherTheGraph, domain.DNSENS, d.Name, false, now)
		res.Resolves = append(res.Resolves, *resolve)
		res.Next = append(res.Next, upstream.NewNFTTarget(domain.ChainEthereum, ensContractAddress, d.Name))
	}
	return res, nil
}

func (f *Fetcher) fetchByENS(ctx context.Context, name string) (upstream.Result, error) {
	const q = `query QueryAddressByENS($ens: String!){
		domains(where: { name: $ens}) { name resolvedAddress { id } }
	}`
	resp, err := f.query(ctx, q, map[string]any{"ens": name})
	if err != nil {
		log.Warn("thegraph fetch by ens failed", "ens", name, "err", err)
		return upstream.Result{}, nil
	}

	now := time.Now()
	var res upstream.Result
	contract := *domain.NewContract(domain.ChainEthereum, domain.ContractCategoryENS, ensContractAddress, now)
	res.Contracts = append(res.Contracts, contract)

	for _, d := range resp.Data.Domains {
		if d.ResolvedAddress == nil || !strings.EqualFold(d.Name, name) {
			continue
		}
		wallet := strings.ToLower(d.ResolvedAddress.ID)
		identity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)
		res.Identities = append(res.Identities, identity)
		hold := domain.NewHold(identity.PrimaryKey(), contract.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherTheGraph, name, now)
		res.Holds = append(res.Holds, *hold)
		resolve := domain.NewResolve(contract.PrimaryKey(), identity.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherTheGraph, domain.DNSENS, name, false, now)
		res.Resolves = append(res.Resolves, *resolve)
		res.Next = append(res.Next, upstream.NewIdentityTarget(domain.PlatformEthereum, wallet))
	}
	return res, nil
}
