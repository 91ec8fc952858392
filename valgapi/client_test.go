package valgapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eklundh/valgarkiv/entity"
)

func TestResultPath(t *testing.T) {
	county := entity.NewCounty("03", "Oslo")
	municipality := entity.NewMunicipality(county, "0301", "Oslo")
	district := entity.NewDistrict(municipality, "0101", "Sentrum")

	tests := []struct {
		e    entity.Entity
		want string
	}{
		{entity.Nation(), "/2025/st"},
		{county, "/2025/st/03"},
		{municipality, "/2025/st/03/0301"},
		{district, "/2025/st/03/0301/0101"},
	}
	for _, tt := range tests {
		got, err := resultPath("2025", tt.e)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025/st/03", r.URL.Path)
		w.Write([]byte(`{"oppslutning": {"stemmer": {"total": 12345}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	doc, err := c.Fetch(context.Background(), "2025", entity.NewCounty("03", "Oslo"))
	require.NoError(t, err)

	total := doc["oppslutning"].(map[string]any)["stemmer"].(map[string]any)["total"]
	assert.Equal(t, float64(12345), total)
}

func TestFetchRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithBackoff(5, time.Millisecond))
	_, err := c.Fetch(context.Background(), "2025", entity.Nation())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithBackoff(3, time.Millisecond))
	_, err := c.Fetch(context.Background(), "2025", entity.Nation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDiscover(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2025/st", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links": {"related": [
			{"nr": "03", "href": "/2025/st/03", "hrefNavn": "/2025/st/03/Oslo"}
		]}}`))
	})
	mux.HandleFunc("/2025/st/03", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links": {"related": [
			{"nr": "0301", "href": "/2025/st/03/0301", "hrefNavn": "/2025/st/03/0301/Oslo", "harUnderordnet": true},
			{"nr": "0302", "href": "/2025/st/03/0302", "hrefNavn": "/2025/st/03/0302/Nordmarka"}
		]}}`))
	})
	mux.HandleFunc("/2025/st/03/0301", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links": {"related": [
			{"nr": "0101", "href": "/2025/st/03/0301/0101", "hrefNavn": "/2025/st/03/0301/0101/Sentrum"},
			{"nr": "0102", "href": "/2025/st/03/0301/0102", "hrefNavn": "/2025/st/03/0301/0102/Gamle%20Oslo"}
		]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	reg, err := c.Discover(context.Background(), "2025")
	require.NoError(t, err)

	assert.Len(t, reg.AtLevel(entity.LevelCounty), 1)
	assert.Len(t, reg.AtLevel(entity.LevelMunicipality), 2)
	assert.Len(t, reg.AtLevel(entity.LevelDistrict), 2)

	// URL-escaped names slugify cleanly.
	_, err = reg.Resolve(entity.LevelDistrict, "krets-03-0301-0102-gamle-oslo")
	require.NoError(t, err)

	// The municipality without districts has no children.
	nordmarka, err := reg.Resolve(entity.LevelMunicipality, "kommune-03-0302-nordmarka")
	require.NoError(t, err)
	assert.Empty(t, reg.Children(nordmarka))
}
