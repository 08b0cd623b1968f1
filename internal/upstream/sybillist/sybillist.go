// Package sybillist fetches Uniswap's Sybil List, a static JSON
// mapping of verified Ethereum<->Twitter claims, ported from
// original_source/src/upstream/sybil_list/mod.rs. Unlike most
// adapters it does not key off the target at all: the whole list is
// small enough to fetch in full and filter client-side, matching the
// original's fetch(None) behavior.
package sybillist

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

const listURL = "https://raw.githubusercontent.com/Uniswap/sybil-list/master/verified.json"

type twitterItem struct {
	Timestamp int64  `json:"timestamp"`
	TweetID   string `json:"tweetID"`
	Handle    string `json:"handle"`
}

type verifiedItem struct {
	Twitter twitterItem `json:"twitter"`
}

// Fetcher pulls the entire sybil list on every call and returns the
// subset of claims that touch the requested target.
type Fetcher struct {
	HTTP *http.Client
}

func New(timeout time.Duration) *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherSybilList }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceSybilList }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && (t.Platform == domain.PlatformEthereum || t.Platform == domain.PlatformTwitter)
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	return f.fetch(ctx, &t)
}

// Prefetch pulls and upserts the entire sybil list unfiltered, used by
// the fire-and-forget prefetch_proof job (spec §6 supplement) instead
// of Fetch's per-target filtering.
func (f *Fetcher) Prefetch(ctx context.Context) (upstream.Result, error) {
	return f.fetch(ctx, nil)
}

// fetch downloads the sybil list once and folds every verified claim
// into the result, optionally filtered down to a single target the
// way the original's fetch(Some(target)) narrowed its unfiltered
// fetch(None) pass.
func (f *Fetcher) fetch(ctx context.Context, t *upstream.Target) (upstream.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return upstream.Result{}, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return upstream.Result{}, errors.Wrap(err, "sybil list request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("sybil list fetch non-200", "status", resp.StatusCode)
		return upstream.Result{}, nil
	}

	var body map[string]verifiedItem
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return upstream.Result{}, errors.Wrap(err, "decode sybil list")
	}

	now := time.Now()
	var res upstream.Result
	for wallet, item := range body {
		wallet = strings.ToLower(wallet)
		handle := strings.ToLower(item.Twitter.Handle)
		if t != nil {
			switch t.Kind {
			case upstream.TargetIdentity:
				if t.Platform == domain.PlatformEthereum && !strings.EqualFold(t.Identity, wallet) {
					continue
				}
				if t.Platform == domain.PlatformTwitter && !strings.EqualFold(t.Identity, handle) {
					continue
				}
			}
		}

		verifiedAt := time.Unix(item.Twitter.Timestamp, 0).UTC()
		ethIdentity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)
		ethIdentity.CreatedAt = &verifiedAt
		twIdentity := *domain.NewIdentity(domain.PlatformTwitter, handle, now)
		twIdentity.CreatedAt = &verifiedAt
		twIdentity.DisplayName = item.Twitter.Handle

		res.Identities = append(res.Identities, ethIdentity, twIdentity)
		proof := domain.NewProof(ethIdentity.PrimaryKey(), twIdentity.PrimaryKey(), domain.DataSourceSybilList, domain.DataFetcherSybilList, now)
		proof.RecordID = item.Twitter.TweetID
		proof.CreatedAt = &verifiedAt
		res.Proofs = append(res.Proofs, *proof)
		res.Next = append(res.Next,
			upstream.NewIdentityTarget(domain.PlatformEthereum, wallet),
			upstream.NewIdentityTarget(domain.PlatformTwitter, handle),
		)
	}
	return res, nil
}

var _ upstream.Prefetcher = (*Fetcher)(nil)
