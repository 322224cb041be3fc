package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archmon.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestConnectionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := Connection{
		Host:    "archipelago.gg",
		Port:    38281,
		Game:    "Ocarina of Time",
		Player:  "Link",
		Channel: "1234",
		Mentions: MentionFlags{
			ItemFinder:   true,
			ItemReceiver: true,
			Completion:   true,
			Hints:        true,
		},
	}
	if err := s.AddConnection(ctx, &c); err != nil {
		t.Fatal(err)
	}
	if c.ID == 0 {
		t.Error("AddConnection did not assign an id")
	}

	conns, err := s.Connections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 {
		t.Fatalf("got %d connections, want 1", len(conns))
	}
	got := conns[0]
	if got.Host != c.Host || got.Port != c.Port || got.Game != c.Game ||
		got.Player != c.Player || got.Channel != c.Channel {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Mentions != c.Mentions {
		t.Errorf("mention flags mismatch: got %+v, want %+v", got.Mentions, c.Mentions)
	}
	if got.Key() != "archipelago.gg:38281" {
		t.Errorf("key = %q", got.Key())
	}

	if err := s.RemoveConnection(ctx, got); err != nil {
		t.Fatal(err)
	}
	conns, err = s.Connections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 0 {
		t.Errorf("got %d connections after remove, want 0", len(conns))
	}
}

func TestLinkUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LinkUser(ctx, "guild1", "Link", "111", DefaultLinkFlags()); err != nil {
		t.Fatal(err)
	}

	// Relinking the same player must update in place, not add a row.
	updated := MentionFlags{JoinLeave: true, Hints: true}
	if err := s.LinkUser(ctx, "guild1", "Link", "222", updated); err != nil {
		t.Fatal(err)
	}

	links, err := s.Links(ctx, "guild1")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].DiscordID != "222" {
		t.Errorf("discord id = %q, want 222", links[0].DiscordID)
	}
	if links[0].Mentions != updated {
		t.Errorf("flags = %+v, want %+v", links[0].Mentions, updated)
	}
}

func TestLinksScopedToGuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.LinkUser(ctx, "guild1", "Link", "111", DefaultLinkFlags())
	s.LinkUser(ctx, "guild2", "Zelda", "222", DefaultLinkFlags())

	links, err := s.Links(ctx, "guild1")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].Player != "Link" {
		t.Errorf("guild1 links = %+v", links)
	}
}

func TestUnlinkUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.LinkUser(ctx, "guild1", "Link", "111", DefaultLinkFlags())
	if err := s.UnlinkUser(ctx, "guild1", "Link"); err != nil {
		t.Fatal(err)
	}
	// Unlinking an absent player is a no-op, not an error.
	if err := s.UnlinkUser(ctx, "guild1", "Nobody"); err != nil {
		t.Fatal(err)
	}

	links, err := s.Links(ctx, "guild1")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Errorf("got %d links after unlink, want 0", len(links))
	}
}

func TestDefaultLinkFlags(t *testing.T) {
	f := DefaultLinkFlags()
	if f.JoinLeave {
		t.Error("join/leave should default to off")
	}
	if !f.ItemFinder || !f.ItemReceiver || !f.Completion || !f.Hints {
		t.Errorf("remaining flags should default to on: %+v", f)
	}
}
