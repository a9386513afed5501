package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/parser"
)

func TestFetchDetail_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/AAA...001", r.URL.Path)
		_ = json.NewEncoder(w).Encode(parser.Detail{
			Signatures:  []string{"AAA...001"},
			Slot:        100,
			AccountKeys: []string{"F...fee"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	detail, err := c.FetchDetail(context.Background(), "AAA...001")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA...001"}, detail.Signatures)
}

func TestFetchDetail_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(parser.Detail{Signatures: []string{"AAA...001"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	_, err := c.FetchDetail(context.Background(), "AAA...001")
	require.NoError(t, err)
}

func TestFetchDetail_5xxIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.FetchDetail(context.Background(), "AAA...001")
	require.Error(t, err)

	var enrichErr *apperr.EnrichmentError
	require.ErrorAs(t, err, &enrichErr)
	assert.True(t, enrichErr.Retriable)
}

func TestFetchDetail_4xxIsNotRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.FetchDetail(context.Background(), "AAA...001")
	require.Error(t, err)

	var enrichErr *apperr.EnrichmentError
	require.ErrorAs(t, err, &enrichErr)
	assert.False(t, enrichErr.Retriable)
}

func TestFetchDetail_MalformedBodyIsNotRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.FetchDetail(context.Background(), "AAA...001")
	require.Error(t, err)

	var enrichErr *apperr.EnrichmentError
	require.ErrorAs(t, err, &enrichErr)
	assert.False(t, enrichErr.Retriable)
}
