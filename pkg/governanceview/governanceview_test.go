package governanceview_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/governanceview"
)

func TestStaticViewUnknownGovernance(t *testing.T) {
	v := governanceview.NewStaticView()
	_, err := v.GovernanceVersion(context.Background(), digest.Of([]byte("g")))
	assert.ErrorIs(t, err, governanceview.ErrGovernanceNotFound)
}

func TestStaticViewEmptyContractsIsNoop(t *testing.T) {
	v := governanceview.NewStaticView()
	g := digest.Of([]byte("g"))
	v.SetVersion(g, 3)

	entries, err := v.Contracts(context.Background(), g, 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStaticViewReturnsConfiguredContracts(t *testing.T) {
	v := governanceview.NewStaticView()
	g := digest.Of([]byte("g"))
	v.SetVersion(g, 1)
	v.SetContracts(g, 1, []governanceview.ContractEntry{
		{Contract: governanceview.ContractInfo{Raw: "source"}, SchemaID: "s1"},
	})

	entries, err := v.Contracts(context.Background(), g, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1", entries[0].SchemaID)
}

func TestHTTPViewValidatesSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version": 7}`))
	}))
	defer srv.Close()

	v, err := governanceview.NewHTTPView(srv.URL, srv.Client())
	require.NoError(t, err)

	ver, err := v.GovernanceVersion(context.Background(), digest.Of([]byte("g")))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), ver)
}

func TestHTTPViewRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version": "not-a-number"}`))
	}))
	defer srv.Close()

	v, err := governanceview.NewHTTPView(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = v.GovernanceVersion(context.Background(), digest.Of([]byte("g")))
	assert.ErrorIs(t, err, governanceview.ErrUnexpectedResponse)
}

func TestHTTPViewMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v, err := governanceview.NewHTTPView(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = v.GovernanceVersion(context.Background(), digest.Of([]byte("g")))
	assert.ErrorIs(t, err, governanceview.ErrGovernanceNotFound)
}
