package ap

import (
	"encoding/json"
	"testing"
)

func TestEventFromPrintJSONItemSend(t *testing.T) {
	raw := json.RawMessage(`{
		"cmd": "PrintJSON", "type": "ItemSend", "receiving": 2,
		"item": {"item": 90000, "location": 1001, "player": 1, "flags": 1},
		"data": [
			{"text": "1", "type": "player_id"},
			{"text": " sent "},
			{"text": "90000", "type": "item_id", "player": 2, "flags": 1},
			{"text": " to "},
			{"text": "2", "type": "player_id"},
			{"text": " (", "type": "text"},
			{"text": "1001", "type": "location_id", "player": 1},
			{"text": ")"}
		]
	}`)

	ev := eventFromPrintJSON(raw)
	send, ok := ev.(ItemSendEvent)
	if !ok {
		t.Fatalf("got %T, want ItemSendEvent", ev)
	}
	if send.Receiving != 2 {
		t.Errorf("receiving = %d, want 2", send.Receiving)
	}
	if len(send.Segments) != 8 {
		t.Fatalf("got %d segments, want 8", len(send.Segments))
	}

	wantKinds := []SegmentKind{
		SegmentPlayer, SegmentText, SegmentItem, SegmentText,
		SegmentPlayer, SegmentText, SegmentLocation, SegmentText,
	}
	for i, k := range wantKinds {
		if send.Segments[i].Kind != k {
			t.Errorf("segment %d kind = %v, want %v", i, send.Segments[i].Kind, k)
		}
	}
	if send.Segments[2].Player != 2 || send.Segments[2].Flags != 1 {
		t.Errorf("item segment = %+v", send.Segments[2])
	}
	if send.Segments[6].Player != 1 {
		t.Errorf("location segment = %+v", send.Segments[6])
	}
}

func TestEventFromPrintJSONVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want func(Event) bool
	}{
		{
			"hint",
			`{"cmd":"PrintJSON","type":"Hint","data":[{"text":"1","type":"player_id"}]}`,
			func(ev Event) bool { h, ok := ev.(HintEvent); return ok && len(h.Segments) == 1 },
		},
		{
			"collect",
			`{"cmd":"PrintJSON","type":"Collect","data":[{"text":"x"}]}`,
			func(ev Event) bool { _, ok := ev.(CollectEvent); return ok },
		},
		{
			"join with tags",
			`{"cmd":"PrintJSON","type":"Join","slot":3,"tags":["Monitor"]}`,
			func(ev Event) bool {
				j, ok := ev.(JoinEvent)
				return ok && j.Slot == 3 && len(j.Tags) == 1 && j.Tags[0] == "Monitor"
			},
		},
		{
			"part",
			`{"cmd":"PrintJSON","type":"Part","slot":2}`,
			func(ev Event) bool { p, ok := ev.(PartEvent); return ok && p.Slot == 2 },
		},
		{
			"goal",
			`{"cmd":"PrintJSON","type":"Goal","slot":1}`,
			func(ev Event) bool { g, ok := ev.(GoalEvent); return ok && g.Slot == 1 },
		},
		{
			"release",
			`{"cmd":"PrintJSON","type":"Release","slot":1}`,
			func(ev Event) bool { r, ok := ev.(ReleaseEvent); return ok && r.Slot == 1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := eventFromPrintJSON(json.RawMessage(tt.raw))
			if ev == nil {
				t.Fatal("got nil event")
			}
			if !tt.want(ev) {
				t.Errorf("unexpected event %#v", ev)
			}
		})
	}
}

func TestEventFromPrintJSONIgnoresChat(t *testing.T) {
	for _, typ := range []string{"Chat", "ServerChat", "Tutorial", "CommandResult"} {
		raw := json.RawMessage(`{"cmd":"PrintJSON","type":"` + typ + `","data":[{"text":"hi"}]}`)
		if ev := eventFromPrintJSON(raw); ev != nil {
			t.Errorf("%s: got %#v, want nil", typ, ev)
		}
	}
}

func TestClientNameLookups(t *testing.T) {
	c := NewClient("archipelago.gg", 38281, "Ocarina of Time", "Link")

	c.storeDataPackage(dataPackagePacket{Data: struct {
		Games map[string]gameData `json:"games"`
	}{Games: map[string]gameData{
		"Ocarina of Time": {
			ItemNameToID:     map[string]int64{"Hookshot": 90000},
			LocationNameToID: map[string]int64{"Kokiri Sword Chest": 1001},
		},
	}}})
	c.storePlayers(connectedPacket{
		Players:  []networkPlayer{{Slot: 1, Name: "Link"}, {Slot: 2, Name: "Zelda", Alias: "Sheik"}},
		SlotInfo: map[string]slotInfo{"1": {Name: "Link", Game: "Ocarina of Time"}},
	})

	if got := c.ItemName(1, 90000, 1); got != "Hookshot" {
		t.Errorf("ItemName = %q", got)
	}
	if got := c.LocationName(1, 1001); got != "Kokiri Sword Chest" {
		t.Errorf("LocationName = %q", got)
	}
	if got := c.ItemName(1, 12345, 0); got != "Unknown item 12345" {
		t.Errorf("unknown item = %q", got)
	}
	if got := c.ItemName(9, 90000, 0); got != "Unknown item 90000" {
		t.Errorf("unknown player item = %q", got)
	}

	// Aliases take precedence over slot names.
	p, ok := c.Player(2)
	if !ok || p.Name != "Sheik" {
		t.Errorf("Player(2) = %+v, %v", p, ok)
	}
	if c.URI() != "archipelago.gg:38281" {
		t.Errorf("URI = %q", c.URI())
	}
}
