package sybillist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

func TestCanFetch(t *testing.T) {
	f := New(time.Second)
	require.True(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformEthereum, "0xabc")))
	require.True(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformTwitter, "vitalik")))
	require.False(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformLens, "stani.lens")))
	require.False(t, f.CanFetch(upstream.NewNFTTarget(domain.ChainEthereum, "0xens", "vitalik.eth")))
}
