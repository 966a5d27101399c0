package telegram

import (
	"context"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"gorm.io/gorm"

	"github.com/studyplan/tg-media-sync/internal/config"
)

// NewPersistentClient creates a telegram client that uses the database for
// session storage. Session updates (auth key refreshes) are persisted back to
// the DB automatically.
func NewPersistentClient(_ context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
	// SqlSession stores session data and peers in the database.
	sessionConstructor := sessionMaker.SqlSession(db.Dialector)

	clientOpts := &gotgproto.ClientOpts{
		Session:          sessionConstructor,
		DisableCopyright: true,
		InMemory:         false,
	}

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""), // empty = use stored session
		clientOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	return client, nil
}

// NewStringSessionClient creates a telegram client from the session string in
// the config (TG_SESSION_STRING). Used to seed a fresh deployment that has no
// session in the database yet. The session lives in memory, so each start
// re-imports it from the environment.
func NewStringSessionClient(_ context.Context, cfg *config.Config, _ *gorm.DB) (*gotgproto.Client, error) {
	clientOpts := &gotgproto.ClientOpts{
		Session:          sessionMaker.StringSession(cfg.TGSessionStr),
		DisableCopyright: true,
		InMemory:         true, // don't write to disk
	}

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""),
		clientOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client from session string: %w", err)
	}

	return client, nil
}
