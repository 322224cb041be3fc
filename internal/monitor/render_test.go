package monitor

import (
	"reflect"
	"testing"

	"github.com/joebot/archmon/internal/ap"
	"github.com/joebot/archmon/internal/store"
)

func TestResolvePlayerFlagMatrix(t *testing.T) {
	links := []store.Link{{
		GuildID: "guild1", Player: "Link", DiscordID: "42",
		Mentions: store.MentionFlags{Hints: true},
	}}

	tests := []struct {
		name     string
		connHint bool
		linkHint bool
		want     string
	}{
		{"both on", true, true, "<@42>"},
		{"connection off", false, true, "**Link**"},
		{"link off", true, false, "**Link**"},
		{"both off", false, false, "**Link**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links[0].Mentions.Hints = tt.linkHint
			conn := store.MentionFlags{Hints: tt.connHint}
			text, token := resolvePlayer("Link", mentionHints, conn, links)
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
			wantToken := ""
			if tt.want == "<@42>" {
				wantToken = "<@42>"
			}
			if token != wantToken {
				t.Errorf("token = %q, want %q", token, wantToken)
			}
		})
	}
}

func TestResolvePlayerUnlinked(t *testing.T) {
	conn := store.MentionFlags{Hints: true, ItemFinder: true}
	text, token := resolvePlayer("Stranger", mentionHints, conn, nil)
	if text != "**Stranger**" || token != "" {
		t.Errorf("got %q, %q", text, token)
	}
}

func TestRenderSegments(t *testing.T) {
	sess := newFakeSession()
	conn := store.MentionFlags{ItemFinder: true, ItemReceiver: true}
	links := []store.Link{{
		GuildID: "guild1", Player: "Samus", DiscordID: "7",
		Mentions: store.MentionFlags{ItemReceiver: true},
	}}

	// Slot 2 is the receiver; slot 1 found the item.
	kindFor := func(slot int) mentionKind {
		if slot == 2 {
			return mentionItemReceiver
		}
		return mentionItemFinder
	}

	l := renderSegments(sess, []ap.Segment{
		{Kind: ap.SegmentPlayer, Text: "1"},
		{Kind: ap.SegmentText, Text: "sent"},
		{Kind: ap.SegmentItem, Text: "90000", Player: 2, Flags: 1},
		{Kind: ap.SegmentText, Text: "to"},
		{Kind: ap.SegmentPlayer, Text: "2"},
		{Kind: ap.SegmentLocation, Text: "1001", Player: 1},
	}, kindFor, conn, links)

	want := "**Link** sent *Hookshot* to <@7> **Kokiri Sword Chest**"
	if l.text != want {
		t.Errorf("text = %q\nwant   %q", l.text, want)
	}
	if !reflect.DeepEqual(l.mentions, []string{"<@7>"}) {
		t.Errorf("mentions = %v", l.mentions)
	}
}

func TestRenderSegmentsBadIDsFallBackToText(t *testing.T) {
	sess := newFakeSession()
	l := renderSegments(sess, []ap.Segment{
		{Kind: ap.SegmentPlayer, Text: "not-a-slot"},
		{Kind: ap.SegmentItem, Text: "nope"},
		{Kind: ap.SegmentLocation, Text: "nah"},
	}, func(int) mentionKind { return mentionItemFinder }, store.MentionFlags{}, nil)

	if l.text != "not-a-slot nope nah" {
		t.Errorf("text = %q", l.text)
	}
	if len(l.mentions) != 0 {
		t.Errorf("mentions = %v", l.mentions)
	}
}

func TestRenderSegmentsUnknownSlotUsesRawText(t *testing.T) {
	sess := newFakeSession()
	conn := store.MentionFlags{Hints: true}
	l := renderSegments(sess, []ap.Segment{
		{Kind: ap.SegmentPlayer, Text: "99"},
	}, func(int) mentionKind { return mentionHints }, conn, nil)
	if l.text != "**99**" {
		t.Errorf("text = %q", l.text)
	}
}

func TestDedupMentions(t *testing.T) {
	tests := []struct {
		name  string
		lines []line
		want  []string
	}{
		{"empty", nil, nil},
		{"no mentions", []line{{text: "a"}, {text: "b"}}, nil},
		{
			"duplicates collapse, first appearance order",
			[]line{
				{mentions: []string{"<@1>", "<@2>"}},
				{mentions: []string{"<@2>", "<@3>", "<@1>"}},
				{mentions: []string{"<@3>"}},
			},
			[]string{"<@1>", "<@2>", "<@3>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedupMentions(tt.lines)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
