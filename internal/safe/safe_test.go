package safe_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/btbroker/internal/cache"
	"github.com/systmms/btbroker/internal/pam"
	"github.com/systmms/btbroker/internal/safe"
	"github.com/systmms/btbroker/tests/fakes"
)

func TestSplitPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "Dev", want: []string{"Dev"}},
		{in: "Dev;Prod", want: []string{"Dev", "Prod"}},
		{in: " Dev , Prod;; Team A/Ops ,", want: []string{"Dev", "Prod", "Team A/Ops"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, safe.SplitPaths(tt.in))
		})
	}
}

func TestBaseKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bt.safe.Dev.App1_DB", safe.BaseKey("Other", pam.SafeItem{Title: fakes.Str("App1_DB"), Folder: fakes.Str("Dev")}))
	assert.Equal(t, "bt.safe.Path.App", safe.BaseKey(" Path ", pam.SafeItem{Title: fakes.Str("App")}))
	assert.Equal(t, "bt.safe.Path.Untitled", safe.BaseKey("Path", pam.SafeItem{}))
}

func TestBaseKeyKeepsEmptyFolder(t *testing.T) {
	t.Parallel()

	var item pam.SafeItem
	require.NoError(t, json.Unmarshal([]byte(`{"Title":"E","Folder":""}`), &item))
	assert.Equal(t, "bt.safe..E", safe.BaseKey("Dev", item))

	b := cache.NewBatch()
	safe.Record(b, "Dev", item)
	c := cache.New()
	c.Merge(b)
	_, ok := c.Get("bt.safe.Dev.E.password")
	assert.False(t, ok)
	_, ok = c.Get("bt.safe..E.password")
	assert.True(t, ok)
}

func fetch(t *testing.T, fake *fakes.FakePAMClient, paths ...string) (*cache.Cache, safe.Stats) {
	t.Helper()
	b := cache.NewBatch()
	stats := safe.NewFetcher(fake, nil).Fetch(context.Background(), paths, b)
	c := cache.New()
	t.Cleanup(c.Close)
	c.Merge(b)
	return c, stats
}

func TestFetchWritesPasswordAndUsername(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakePAMClient().SetSafe("Dev", pam.SafeItem{
		Title:    fakes.Str("App1_DB"),
		Folder:   fakes.Str("Dev"),
		Password: fakes.Str("P1"),
		Username: fakes.Str("u1"),
	})

	c, stats := fetch(t, fake, "Dev")

	assert.Equal(t, safe.Stats{Paths: 1, Items: 1}, stats)
	assert.Equal(t, map[string]string{
		"bt.safe.Dev.App1_DB.password": "P1",
		"bt.safe.Dev.App1_DB.username": "u1",
	}, c.Snapshot())
}

func TestFetchLowercaseTitleWithoutUsername(t *testing.T) {
	t.Parallel()

	var items []pam.SafeItem
	require.NoError(t, json.Unmarshal([]byte(`[{"title":"Api","Password":"k"}]`), &items))

	fake := fakes.NewFakePAMClient().SetSafe("Prod", items...)
	c, _ := fetch(t, fake, "Prod")

	assert.Equal(t, "k", c.Value("bt.safe.Prod.Api.password"))
	_, ok := c.Get("bt.safe.Prod.Api.username")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestFetchMissingPasswordAndAccountFallback(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakePAMClient().SetSafe("Ops", pam.SafeItem{
		Title:   fakes.Str("Svc"),
		Account: fakes.Str("svc-user"),
	})

	c, _ := fetch(t, fake, "Ops")

	v, ok := c.Get("bt.safe.Ops.Svc.password")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	assert.Equal(t, "svc-user", c.Value("bt.safe.Ops.Svc.username"))
}

func TestFetchSkipsFailingPath(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakePAMClient().
		SetSafe("Good", pam.SafeItem{Title: fakes.Str("A"), Password: fakes.Str("1")})

	c, stats := fetch(t, fake, "Missing", "Good")

	assert.Equal(t, safe.Stats{Paths: 2, FailedPaths: 1, Items: 1}, stats)
	assert.Equal(t, "1", c.Value("bt.safe.Good.A.password"))
	assert.Equal(t, []string{"Missing", "Good"}, fake.Args(pam.OpSafe))
}
