package dotbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

func TestCanFetch(t *testing.T) {
	f := New("https://example.test", time.Second)
	require.True(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformEthereum, "0xabc")))
	require.False(t, f.CanFetch(upstream.NewIdentityTarget(domain.PlatformTwitter, "abc")))
	require.False(t, f.CanFetch(upstream.NewNFTTarget(domain.ChainEthereum, "0xens", "vitalik.eth")))
}

func TestFetchYieldsHoldAndFollowUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.RawQuery, "key_info.key=0xabc")
		w.Write([]byte(`{"data":{"accounts":[{"account":"sujiyan.bit"}]}}`))
	}))
	defer srv.Close()

	f := New(srv.URL, time.Second)
	res, err := f.Fetch(context.Background(), upstream.NewIdentityTarget(domain.PlatformEthereum, "0xABC"))
	require.NoError(t, err)
	require.Len(t, res.Identities, 2)
	require.Len(t, res.Holds, 1)
	require.Equal(t, "sujiyan.bit", res.Holds[0].ID)
	require.Len(t, res.Next, 1)
	require.Equal(t, upstream.NewIdentityTarget(domain.PlatformDotbit, "sujiyan.bit"), res.Next[0])
}

func TestFetchNetworkErrorIsSwallowed(t *testing.T) {
	f := New("http://127.0.0.1:0", time.Millisecond)
	res, err := f.Fetch(context.Background(), upstream.NewIdentityTarget(domain.PlatformEthereum, "0xabc"))
	require.NoError(t, err)
	require.Empty(t, res.Identities)
}
