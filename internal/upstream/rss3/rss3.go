// Package rss3 fetches an Ethereum wallet's on-chain NFT activity feed
// from RSS3, producing Hold edges toward the contracts it transacted
// with. Ported from original_source/src/upstream/rss3/mod.rs's Rss3
// fetcher and save_item helper.
package rss3

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

type metadata struct {
	CollectionAddress string `json:"collection_address"`
	ContractType      string `json:"contract_type"`
	Network           string `json:"network"`
	TokenID           string `json:"token_id"`
	TokenSymbol       string `json:"token_symbol"`
}

type item struct {
	DateCreated string   `json:"date_created"`
	Metadata    metadata `json:"metadata"`
}

type response struct {
	List []item `json:"list"`
}

// Fetcher pulls an Ethereum wallet's NFT-related activity notes from
// the RSS3 open data feed.
type Fetcher struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string, timeout time.Duration) *Fetcher {
	return &Fetcher{Endpoint: endpoint, HTTP: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherRss3 }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceRss3 }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
}

func categoryFor(contractType string) domain.ContractCategory {
	switch strings.ToUpper(contractType) {
	case "ERC721":
		return domain.ContractCategoryERC721
	case "ERC1155":
		return domain.ContractCategoryERC1155
	default:
		return domain.ContractCategoryUnknown
	}
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	url := fmt.Sprintf("%s/%s/notes?tag=collectible", strings.TrimRight(f.Endpoint, "/"), t.Identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return upstream.Result{}, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return upstream.Result{}, errors.Wrap(err, "rss3 request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("rss3 fetch non-200", "wallet", t.Identity, "status", resp.StatusCode)
		return upstream.Result{}, nil
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return upstream.Result{}, errors.Wrap(err, "decode rss3 response")
	}

	now := time.Now()
	wallet := strings.ToLower(t.Identity)
	identity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)

	var res upstream.Result
	res.Identities = append(res.Identities, identity)
	seenContracts := map[string]bool{}

	for _, it := range body.List {
		addr := strings.ToLower(it.Metadata.CollectionAddress)
		if addr == "" {
			continue
		}
		category := categoryFor(it.Metadata.ContractType)
		contract := *domain.NewContract(domain.ChainEthereum, category, addr, now)
		contract.Symbol = it.Metadata.TokenSymbol
		if !seenContracts[addr] {
			seenContracts[addr] = true
			res.Contracts = append(res.Contracts, contract)
		}

		hold := domain.NewHold(identity.PrimaryKey(), contract.PrimaryKey(), domain.DataSourceRss3, domain.DataFetcherRss3, it.Metadata.TokenID, now)
		if created, err := time.Parse(time.RFC3339, it.DateCreated); err == nil {
			hold.CreatedAt = &created
		}
		res.Holds = append(res.Holds, *hold)
		res.Next = append(res.Next, upstream.NewNFTTarget(domain.ChainEthereum, addr, it.Metadata.TokenID))
	}
	return res, nil
}
