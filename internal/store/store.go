package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// MentionFlags are the per-category mention preferences. They appear on
// both connections (set by whoever starts the monitor) and user links
// (set per linked player).
type MentionFlags struct {
	JoinLeave    bool
	ItemFinder   bool
	ItemReceiver bool
	Completion   bool
	Hints        bool
}

// DefaultLinkFlags returns the flag defaults applied when a link is
// created without explicit preferences: everything on except join/leave.
func DefaultLinkFlags() MentionFlags {
	return MentionFlags{ItemFinder: true, ItemReceiver: true, Completion: true, Hints: true}
}

// DefaultConnectionFlags returns the flag defaults for a new monitor:
// every category enabled. Link-level flags still gate each mention.
func DefaultConnectionFlags() MentionFlags {
	return MentionFlags{JoinLeave: true, ItemFinder: true, ItemReceiver: true, Completion: true, Hints: true}
}

// Connection is a persisted monitor configuration. ID is assigned by the
// database; identity for running monitors is (Host, Port).
type Connection struct {
	ID       int64
	Host     string
	Port     int
	Game     string
	Player   string
	Channel  string
	Mentions MentionFlags
}

// Key returns the registry key for this connection.
func (c Connection) Key() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Link maps an Archipelago player name to a Discord user within a guild.
type Link struct {
	GuildID   string
	Player    string
	DiscordID string
	Mentions  MentionFlags
}

// Store is the sqlite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	game TEXT NOT NULL,
	player TEXT NOT NULL,
	channel TEXT NOT NULL,
	mention_join_leave INTEGER NOT NULL DEFAULT 0,
	mention_item_finder INTEGER NOT NULL DEFAULT 1,
	mention_item_receiver INTEGER NOT NULL DEFAULT 1,
	mention_completion INTEGER NOT NULL DEFAULT 1,
	mention_hints INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS user_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id TEXT NOT NULL,
	archipelago_name TEXT NOT NULL,
	discord_id TEXT NOT NULL,
	mention_join_leave INTEGER NOT NULL DEFAULT 0,
	mention_item_finder INTEGER NOT NULL DEFAULT 1,
	mention_item_receiver INTEGER NOT NULL DEFAULT 1,
	mention_completion INTEGER NOT NULL DEFAULT 1,
	mention_hints INTEGER NOT NULL DEFAULT 1,
	UNIQUE (guild_id, archipelago_name)
);
CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	action TEXT NOT NULL,
	timestamp DATETIME NOT NULL
);
`

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Connections returns every persisted monitor configuration.
func (s *Store) Connections(ctx context.Context) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, host, port, game, player, channel,
		       mention_join_leave, mention_item_finder, mention_item_receiver,
		       mention_completion, mention_hints
		FROM connections`)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		var c Connection
		err := rows.Scan(&c.ID, &c.Host, &c.Port, &c.Game, &c.Player, &c.Channel,
			&c.Mentions.JoinLeave, &c.Mentions.ItemFinder, &c.Mentions.ItemReceiver,
			&c.Mentions.Completion, &c.Mentions.Hints)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// AddConnection persists a new monitor configuration and fills in its ID.
func (s *Store) AddConnection(ctx context.Context, c *Connection) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (host, port, game, player, channel,
			mention_join_leave, mention_item_finder, mention_item_receiver,
			mention_completion, mention_hints)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Host, c.Port, c.Game, c.Player, c.Channel,
		c.Mentions.JoinLeave, c.Mentions.ItemFinder, c.Mentions.ItemReceiver,
		c.Mentions.Completion, c.Mentions.Hints)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

// RemoveConnection deletes the persisted configuration matching the
// connection's full identity.
func (s *Store) RemoveConnection(ctx context.Context, c Connection) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM connections
		WHERE host = ? AND port = ? AND game = ? AND player = ? AND channel = ?`,
		c.Host, c.Port, c.Game, c.Player, c.Channel)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// Links returns every player link for a guild.
func (s *Store) Links(ctx context.Context, guildID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, archipelago_name, discord_id,
		       mention_join_leave, mention_item_finder, mention_item_receiver,
		       mention_completion, mention_hints
		FROM user_links WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		err := rows.Scan(&l.GuildID, &l.Player, &l.DiscordID,
			&l.Mentions.JoinLeave, &l.Mentions.ItemFinder, &l.Mentions.ItemReceiver,
			&l.Mentions.Completion, &l.Mentions.Hints)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// LinkUser creates or updates the link for (guildID, player).
func (s *Store) LinkUser(ctx context.Context, guildID, player, discordID string, flags MentionFlags) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_links (guild_id, archipelago_name, discord_id,
			mention_join_leave, mention_item_finder, mention_item_receiver,
			mention_completion, mention_hints)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id, archipelago_name) DO UPDATE SET
			discord_id = excluded.discord_id,
			mention_join_leave = excluded.mention_join_leave,
			mention_item_finder = excluded.mention_item_finder,
			mention_item_receiver = excluded.mention_item_receiver,
			mention_completion = excluded.mention_completion,
			mention_hints = excluded.mention_hints`,
		guildID, player, discordID,
		flags.JoinLeave, flags.ItemFinder, flags.ItemReceiver,
		flags.Completion, flags.Hints)
	if err != nil {
		return fmt.Errorf("link user: %w", err)
	}
	return nil
}

// UnlinkUser removes the link for (guildID, player). Removing a link that
// does not exist is not an error.
func (s *Store) UnlinkUser(ctx context.Context, guildID, player string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_links WHERE guild_id = ? AND archipelago_name = ?`,
		guildID, player)
	if err != nil {
		return fmt.Errorf("unlink user: %w", err)
	}
	return nil
}

// Log appends an activity log entry. Logging is best-effort: failures are
// logged and swallowed so they never affect the caller.
func (s *Store) Log(ctx context.Context, guildID, userID, action string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (guild_id, user_id, action, timestamp)
		VALUES (?, ?, ?, ?)`,
		guildID, userID, action, time.Now().UTC())
	if err != nil {
		slog.Warn("activity log write failed", "action", action, "err", err)
	}
}
