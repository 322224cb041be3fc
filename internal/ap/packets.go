package ap

import "encoding/json"

// Player is one slot in the session, as reported by the server.
type Player struct {
	Slot int
	Name string
	Game string
}

// SegmentKind discriminates the parts of a PrintJSON message.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentPlayer
	SegmentItem
	SegmentLocation
)

// Segment is one part of a PrintJSON message. For player, item and
// location segments Text holds the numeric id as sent on the wire;
// Player is the slot that owns the item or location.
type Segment struct {
	Kind   SegmentKind
	Text   string
	Player int
	Flags  int
}

// Event is a typed session event delivered on the client's event channel.
type Event interface{ event() }

// ItemSendEvent is an item moving between players (or being collected by
// the server on a player's behalf). Receiving is the slot the item goes to.
type ItemSendEvent struct {
	Receiving int
	Segments  []Segment
}

// CollectEvent is a player collecting their remaining items from other
// worlds after finishing.
type CollectEvent struct {
	Segments []Segment
}

// HintEvent is a hint being published to the session.
type HintEvent struct {
	Segments []Segment
}

// JoinEvent is a client joining the session.
type JoinEvent struct {
	Slot int
	Tags []string
}

// PartEvent is a client leaving the session.
type PartEvent struct {
	Slot int
}

// GoalEvent is a player completing their goal.
type GoalEvent struct {
	Slot int
}

// ReleaseEvent is a player releasing their remaining items to their owners.
type ReleaseEvent struct {
	Slot int
}

// DisconnectedEvent is emitted when the server connection is lost.
type DisconnectedEvent struct {
	Err error
}

func (ItemSendEvent) event()     {}
func (CollectEvent) event()      {}
func (HintEvent) event()         {}
func (JoinEvent) event()         {}
func (PartEvent) event()         {}
func (GoalEvent) event()         {}
func (ReleaseEvent) event()      {}
func (DisconnectedEvent) event() {}

// --- wire packets ---

type packetHead struct {
	Cmd string `json:"cmd"`
}

type dataPackagePacket struct {
	Data struct {
		Games map[string]gameData `json:"games"`
	} `json:"data"`
}

type gameData struct {
	ItemNameToID     map[string]int64 `json:"item_name_to_id"`
	LocationNameToID map[string]int64 `json:"location_name_to_id"`
}

type connectedPacket struct {
	Slot    int             `json:"slot"`
	Players []networkPlayer `json:"players"`
	// slot_info is keyed by the slot number as a string
	SlotInfo map[string]slotInfo `json:"slot_info"`
}

type networkPlayer struct {
	Team  int    `json:"team"`
	Slot  int    `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

type slotInfo struct {
	Name string `json:"name"`
	Game string `json:"game"`
}

type refusedPacket struct {
	Errors []string `json:"errors"`
}

type printJSONPacket struct {
	Type      string     `json:"type"`
	Data      []jsonPart `json:"data"`
	Receiving int        `json:"receiving"`
	Slot      int        `json:"slot"`
	Tags      []string   `json:"tags"`
}

type jsonPart struct {
	Text   string `json:"text"`
	Type   string `json:"type"`
	Player int    `json:"player"`
	Flags  int    `json:"flags"`
}

type connectPacket struct {
	Cmd           string   `json:"cmd"`
	Game          string   `json:"game"`
	Name          string   `json:"name"`
	Password      string   `json:"password"`
	UUID          string   `json:"uuid"`
	Version       version  `json:"version"`
	ItemsHandling int      `json:"items_handling"`
	Tags          []string `json:"tags"`
	SlotData      bool     `json:"slot_data"`
}

type version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

// parseSegments converts wire message parts into segments. An absent or
// unrecognized part type is treated as plain text, matching server behavior
// for the plain-text shorthand form.
func parseSegments(parts []jsonPart) []Segment {
	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		seg := Segment{Text: p.Text, Player: p.Player, Flags: p.Flags}
		switch p.Type {
		case "player_id":
			seg.Kind = SegmentPlayer
		case "item_id":
			seg.Kind = SegmentItem
		case "location_id":
			seg.Kind = SegmentLocation
		default:
			seg.Kind = SegmentText
		}
		segs = append(segs, seg)
	}
	return segs
}

// eventFromPrintJSON maps a PrintJSON packet to a typed event, or nil for
// message types the bridge does not announce (chat, server messages, ...).
func eventFromPrintJSON(raw json.RawMessage) Event {
	var p printJSONPacket
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	switch p.Type {
	case "ItemSend":
		return ItemSendEvent{Receiving: p.Receiving, Segments: parseSegments(p.Data)}
	case "Collect":
		return CollectEvent{Segments: parseSegments(p.Data)}
	case "Hint":
		return HintEvent{Segments: parseSegments(p.Data)}
	case "Join":
		return JoinEvent{Slot: p.Slot, Tags: p.Tags}
	case "Part":
		return PartEvent{Slot: p.Slot}
	case "Goal":
		return GoalEvent{Slot: p.Slot}
	case "Release":
		return ReleaseEvent{Slot: p.Slot}
	default:
		return nil
	}
}
