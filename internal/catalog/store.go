// Package catalog reads the desired game and tool folders out of the
// launcher's sqlite database and keeps the local copy of that database
// fresh.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/eti-lan/peti-sync/internal/resilio"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is a read-only view over the launcher catalog database. It
// serves the games, tools and discarded tables as materialized folder
// sequences ordered by their insertion keys.
type Store struct {
	conn *sql.DB
}

// Open opens the catalog database at path read-only. The caller must
// Close the store when done.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging catalog database: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing catalog database: %w", err)
	}

	return nil
}

// AllowFolders returns every game and tool folder in the catalog, games
// first, each group in insertion order. The order has no semantic
// weight but keeps log output reproducible between runs.
func (s *Store) AllowFolders(ctx context.Context, cfg *config.Config) ([]resilio.Folder, error) {
	games, err := s.queryFolders(ctx, cfg,
		"SELECT game_key, game_title, game_id FROM games ORDER BY db_id")
	if err != nil {
		return nil, fmt.Errorf("reading games: %w", err)
	}

	tools, err := s.queryFolders(ctx, cfg,
		"SELECT tool_key, tool_name, tool_id FROM tools ORDER BY db_id")
	if err != nil {
		return nil, fmt.Errorf("reading tools: %w", err)
	}

	return append(games, tools...), nil
}

// DiscardedFolders returns the folders the launcher has marked as
// discarded, in deletion order. Discarded rows carry no display name;
// the folder id stands in for it.
func (s *Store) DiscardedFolders(ctx context.Context, cfg *config.Config) ([]resilio.Folder, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT game_key, game_id FROM discarded ORDER BY del_id")
	if err != nil {
		return nil, fmt.Errorf("reading discarded: %w", err)
	}
	defer rows.Close()

	var folders []resilio.Folder

	for rows.Next() {
		var secret, id string
		if err := rows.Scan(&secret, &id); err != nil {
			return nil, fmt.Errorf("scanning discarded row: %w", err)
		}

		folders = append(folders, resilio.NewFolder(cfg, id, id, secret))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating discarded rows: %w", err)
	}

	return folders, nil
}

func (s *Store) queryFolders(ctx context.Context, cfg *config.Config, query string) ([]resilio.Folder, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []resilio.Folder

	for rows.Next() {
		var secret, name, id string
		if err := rows.Scan(&secret, &name, &id); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		folders = append(folders, resilio.NewFolder(cfg, name, id, secret))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return folders, nil
}
