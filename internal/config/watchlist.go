package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WatchlistEntry describes a single channel to sync at startup.
type WatchlistEntry struct {
	Channel string `yaml:"channel"`
	Limit   int    `yaml:"limit,omitempty"`
}

// Watchlist is the set of channels synced automatically when the service starts.
type Watchlist struct {
	Channels []WatchlistEntry `yaml:"channels"`
}

// LoadWatchlist parses the YAML watchlist file at path.
// An empty path returns an empty watchlist.
func LoadWatchlist(path string) (*Watchlist, error) {
	if path == "" {
		return &Watchlist{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}

	for i, e := range wl.Channels {
		if e.Channel == "" {
			return nil, fmt.Errorf("watchlist entry %d: channel is required", i)
		}
	}

	return &wl, nil
}
