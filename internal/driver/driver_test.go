package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T, handler http.HandlerFunc) (*Driver, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	d := New(Config{
		DriverURL:          server.URL,
		PreconfCallTimeout: time.Second,
		StatusCallTimeout:  time.Second,
		CallTimeout:        time.Second,
		JWTSecret:          [32]byte{1, 2, 3},
	})
	return d, server.Close
}

func TestPreconfBlocksSendsBearerTokenAndDecodesResponse(t *testing.T) {
	var gotAuth string
	d, closeFn := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/preconfBlocks", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		resp := BuildPreconfBlockResponse{Number: 42, Hash: common.HexToHash("0xaa")}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	resp, err := d.PreconfBlocks(context.Background(), BuildPreconfBlockRequest{}, OperationPreconfirm)
	require.NoError(t, err)
	require.Equal(t, uint64(42), resp.Number)
	require.Equal(t, common.HexToHash("0xaa"), resp.Hash)
	require.Contains(t, gotAuth, "Bearer ")
}

func TestGetStatusDecodesDriverSyncState(t *testing.T) {
	d, closeFn := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(Status{HighestUnsafeL2PayloadBlockID: 7})
	})
	defer closeFn()

	status, err := d.GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), status.HighestUnsafeL2PayloadBlockID)
}

func TestPreconfBlocksSurfacesNonOKStatus(t *testing.T) {
	d, closeFn := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusConflict)
	})
	defer closeFn()

	_, err := d.PreconfBlocks(context.Background(), BuildPreconfBlockRequest{}, OperationReanchor)
	require.Error(t, err)
}

func TestOperationTypeString(t *testing.T) {
	require.Equal(t, "preconfirm", OperationPreconfirm.String())
	require.Equal(t, "reanchor", OperationReanchor.String())
	require.Equal(t, "status", OperationStatus.String())
}
