package httpstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store"
)

func TestUpsertGraphSendsOperatorHintsAndAuth(t *testing.T) {
	var gotPayload upsertPayload
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/graph/main", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "main", "secret-token", time.Second)
	err := s.UpsertGraph(context.Background(),
		[]store.VertexUpsert{{
			VertexType: domain.VertexTypeIdentity,
			ID:         "ethereum,0xabc",
			Attrs: map[string]store.Attr{
				"uuid":       {Value: "u-1", Op: store.OpIgnoreIfExists},
				"updated_at": {Value: int64(100), Op: store.OpMax},
			},
		}},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Len(t, gotPayload.Vertices, 1)
	require.Equal(t, "ignore_if_exists", gotPayload.Vertices[0].Attrs["uuid"].Op)
	require.Equal(t, "max", gotPayload.Vertices[0].Attrs["updated_at"].Op)
}

func TestUpsertGraphNonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, "main", "", time.Second)
	err := s.UpsertGraph(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestFindVertexByPlatformIdentityNotFoundReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(srv.URL, "main", "", time.Second)
	got, err := s.FindVertexByPlatformIdentity(context.Background(), domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindVertexByPlatformIdentityDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ethereum", r.URL.Query().Get("platform"))
		require.Equal(t, "0xabc", r.URL.Query().Get("identity"))
		w.Write([]byte(`{"uuid":"11111111-1111-1111-1111-111111111111","platform":"ethereum","identity":"0xabc","added_at":1000,"updated_at":2000}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "main", "", time.Second)
	got, err := s.FindVertexByPlatformIdentity(context.Background(), domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "0xabc", got.Identity)
	require.Equal(t, domain.PlatformEthereum, got.Platform)
}

func TestNeighborsParsesReverseFlagAndSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("depth"))
		require.Equal(t, "1", r.URL.Query().Get("reverse_flag"))
		w.Write([]byte(`[{"identity":{"platform":"ens","identity":"vitalik.eth","added_at":1,"updated_at":2},"sources":["the_graph"],"reverse":true}]`))
	}))
	defer srv.Close()

	s := New(srv.URL, "main", "", time.Second)
	got, err := s.Neighbors(context.Background(), "ethereum,0xabc", 2, store.NeighborFilterReverseOnly)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []domain.DataSource{domain.DataSourceTheGraph}, got[0].Sources)
	require.NotNil(t, got[0].Reverse)
	require.True(t, *got[0].Reverse)
}
