package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

func TestResolveCardLocalRole(t *testing.T) {
	card, err := resolveCard("processing", "")
	require.NoError(t, err)
	assert.Equal(t, "po-processing", card.Name)

	_, err = resolveCard("shipping", "")
	assert.ErrorContains(t, err, `unknown role "shipping"`)
}

func TestResolveCardFetchesRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, a2a.WellKnownCardPath, r.URL.Path)
		json.NewEncoder(w).Encode(a2a.AgentCard{
			Name:    "po-intake",
			URL:     "http://example.test:9000",
			Version: "1.0.0",
		})
	}))
	defer srv.Close()

	card, err := resolveCard("", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "po-intake", card.Name)
	assert.Equal(t, "http://example.test:9000", card.URL)
}

func TestCardCmdRequiresExactlyOneSource(t *testing.T) {
	assert.Error(t, (&CardCmd{}).Run(nil))
	assert.Error(t, (&CardCmd{Role: "intake", URL: "http://x"}).Run(nil))
}
