package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("TG_API_ID")
	os.Unsetenv("DOWNLOAD_DIR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DownloadDir != "./downloads" {
		t.Errorf("DownloadDir = %s, want ./downloads", cfg.DownloadDir)
	}
	if cfg.RateRPS != 2.0 {
		t.Errorf("RateRPS = %f, want 2.0", cfg.RateRPS)
	}
	if cfg.MaxFloodRetries != 3 {
		t.Errorf("MaxFloodRetries = %d, want 3", cfg.MaxFloodRetries)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("TG_API_ID", "12345")
	t.Setenv("RATE_RPS", "0.5")
	t.Setenv("PACE_DELAY_MS", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TGApiID != 12345 {
		t.Errorf("TGApiID = %d, want 12345", cfg.TGApiID)
	}
	if cfg.RateRPS != 0.5 {
		t.Errorf("RateRPS = %f, want 0.5", cfg.RateRPS)
	}
	if cfg.PaceDelayMs != 250 {
		t.Errorf("PaceDelayMs = %d, want 250", cfg.PaceDelayMs)
	}
}

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	content := "channels:\n  - channel: \"@course_channel\"\n    limit: 50\n  - channel: other_channel\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	wl, err := LoadWatchlist(path)
	if err != nil {
		t.Fatalf("LoadWatchlist() error = %v", err)
	}
	if len(wl.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(wl.Channels))
	}
	if wl.Channels[0].Channel != "@course_channel" || wl.Channels[0].Limit != 50 {
		t.Errorf("unexpected first entry: %+v", wl.Channels[0])
	}
}

func TestLoadWatchlist_EmptyPath(t *testing.T) {
	wl, err := LoadWatchlist("")
	if err != nil {
		t.Fatalf("LoadWatchlist(\"\") error = %v", err)
	}
	if len(wl.Channels) != 0 {
		t.Errorf("got %d channels, want 0", len(wl.Channels))
	}
}

func TestLoadWatchlist_MissingChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(path, []byte("channels:\n  - limit: 10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadWatchlist(path); err == nil {
		t.Error("expected error for entry without channel")
	}
}
