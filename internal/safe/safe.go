// Package safe reads static secrets from Secrets Safe folders.
package safe

import (
	"context"
	"strings"

	"github.com/systmms/btbroker/internal/cache"
	"github.com/systmms/btbroker/internal/logging"
	"github.com/systmms/btbroker/internal/pam"
)

// KeyPrefix is the namespace of static secret keys.
const KeyPrefix = "bt.safe."

const untitled = "Untitled"

// SplitPaths splits a path list on ';' or ','. Blank entries are dropped.
func SplitPaths(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ';' || r == ','
	})
	var out []string
	for _, f := range fields {
		if p := strings.TrimSpace(f); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BaseKey returns "bt.safe.<folder>.<title>" for an item listed under path.
// Only an absent folder falls back to path; an empty one is kept.
func BaseKey(path string, item pam.SafeItem) string {
	folder := strings.TrimSpace(path)
	if item.Folder != nil {
		folder = *item.Folder
	}
	title := untitled
	if item.Title != nil {
		title = *item.Title
	}
	return KeyPrefix + folder + "." + title
}

// Stats summarizes one Fetch.
type Stats struct {
	Paths       int
	FailedPaths int
	Items       int
}

// Fetcher lists Secrets Safe paths into a cache batch.
type Fetcher struct {
	Client pam.Client
	Logger *logging.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client pam.Client, logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fetcher{Client: client, Logger: logger}
}

// Fetch lists every path in order and records each item's password and,
// when present, username. A failing path is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, paths []string, batch *cache.Batch) Stats {
	var stats Stats
	for _, path := range paths {
		stats.Paths++
		items, err := f.Client.ListSafeSecrets(ctx, path)
		if err != nil {
			stats.FailedPaths++
			f.Logger.Warn("secrets safe path %q skipped: %v", path, err)
			continue
		}
		for _, item := range items {
			Record(batch, path, item)
			stats.Items++
		}
		f.Logger.Debug("secrets safe path %q: %d items", path, len(items))
	}
	return stats
}

// Record adds item's keys to batch.
func Record(batch *cache.Batch, path string, item pam.SafeItem) {
	base := BaseKey(path, item)

	password := ""
	if item.Password != nil {
		password = *item.Password
	}
	batch.Put(base+".password", password)

	switch {
	case item.Username != nil:
		batch.Put(base+".username", *item.Username)
	case item.Account != nil:
		batch.Put(base+".username", *item.Account)
	}
}
