package monitor

import (
	"strconv"
	"strings"

	"github.com/joebot/archmon/internal/ap"
	"github.com/joebot/archmon/internal/store"
)

// mentionKind is the notification category a mention decision is gated on.
type mentionKind int

const (
	mentionJoinLeave mentionKind = iota
	mentionItemFinder
	mentionItemReceiver
	mentionCompletion
	mentionHints
)

func flagFor(f store.MentionFlags, kind mentionKind) bool {
	switch kind {
	case mentionJoinLeave:
		return f.JoinLeave
	case mentionItemFinder:
		return f.ItemFinder
	case mentionItemReceiver:
		return f.ItemReceiver
	case mentionCompletion:
		return f.Completion
	case mentionHints:
		return f.Hints
	default:
		return false
	}
}

// line is one rendered notification line. Mention tokens appearing in the
// text are carried alongside it so the batcher never has to re-parse
// rendered output.
type line struct {
	text     string
	mentions []string
}

// resolvePlayer renders a player reference. The player is mentioned only
// when a link exists and both the connection-level and link-level flag for
// the category are set; otherwise the display name is bolded.
func resolvePlayer(name string, kind mentionKind, conn store.MentionFlags, links []store.Link) (string, string) {
	if flagFor(conn, kind) {
		for _, l := range links {
			if l.Player == name && flagFor(l.Mentions, kind) {
				token := "<@" + l.DiscordID + ">"
				return token, token
			}
		}
	}
	return "**" + name + "**", ""
}

// renderSegments renders one event's message parts into a single line.
// kindFor selects the mention category for a player segment by slot, which
// lets ItemSend distinguish the receiving player from the finder.
func renderSegments(sess Session, segs []ap.Segment, kindFor func(slot int) mentionKind, conn store.MentionFlags, links []store.Link) line {
	parts := make([]string, 0, len(segs))
	var mentions []string

	for _, seg := range segs {
		switch seg.Kind {
		case ap.SegmentPlayer:
			slot, err := strconv.Atoi(seg.Text)
			if err != nil {
				parts = append(parts, seg.Text)
				continue
			}
			name := seg.Text
			if p, ok := sess.Player(slot); ok {
				name = p.Name
			}
			text, token := resolvePlayer(name, kindFor(slot), conn, links)
			parts = append(parts, text)
			if token != "" {
				mentions = append(mentions, token)
			}

		case ap.SegmentItem:
			id, err := strconv.ParseInt(seg.Text, 10, 64)
			if err != nil {
				parts = append(parts, seg.Text)
				continue
			}
			parts = append(parts, "*"+sess.ItemName(seg.Player, id, seg.Flags)+"*")

		case ap.SegmentLocation:
			id, err := strconv.ParseInt(seg.Text, 10, 64)
			if err != nil {
				parts = append(parts, seg.Text)
				continue
			}
			parts = append(parts, "**"+sess.LocationName(seg.Player, id)+"**")

		default:
			parts = append(parts, seg.Text)
		}
	}

	return line{text: strings.Join(parts, " "), mentions: mentions}
}

// dedupMentions returns the distinct mention tokens across a batch of
// lines, in order of first appearance.
func dedupMentions(lines []line) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lines {
		for _, m := range l.mentions {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}
