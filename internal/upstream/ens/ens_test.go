package ens

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

func TestCanFetch(t *testing.T) {
	f := &Fetcher{}
	require.True(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformEthereum, "0xabc")))
	require.False(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformTwitter, "abc")))
	require.False(t, f.CanFetch(upstream.NewNFTTarget(domain.ChainEthereum, "0xens", "vitalik.eth")))
}

func TestNamehashEmptyIsZero(t *testing.T) {
	require.Equal(t, [32]byte{}, namehash(""))
}

func TestNamehashIsDeterministicAndAddressSensitive(t *testing.T) {
	addrA := common.HexToAddress("0x1234567890123456789012345678901234567890")
	addrB := common.HexToAddress("0x0000000000000000000000000000000000000001")

	nodeA1 := reverseNode(addrA)
	nodeA2 := reverseNode(addrA)
	require.Equal(t, nodeA1, nodeA2)

	nodeB := reverseNode(addrB)
	require.NotEqual(t, nodeA1, nodeB)
}
