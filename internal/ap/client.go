package ap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// itemsHandlingRemoteAll asks the server to send every item event for the
// monitored slot, matching a pure observer.
const itemsHandlingRemoteAll = 7

var protocolVersion = version{Major: 0, Minor: 5, Build: 0, Class: "Version"}

// Client is a websocket client for one Archipelago session. It connects as
// a text-only monitor for a single slot and delivers session events on the
// Events channel. Connect may be called again after a disconnect; name
// tables survive reconnects.
type Client struct {
	host string
	port int
	game string
	slot string

	events chan Event

	mu        sync.RWMutex
	conn      *websocket.Conn
	players   map[int]Player
	items     map[string]map[int64]string
	locations map[string]map[int64]string
	closed    bool
}

// NewClient creates a client for the given session endpoint and slot.
func NewClient(host string, port int, game, slotName string) *Client {
	return &Client{
		host:      host,
		port:      port,
		game:      game,
		slot:      slotName,
		events:    make(chan Event, 64),
		players:   make(map[int]Player),
		items:     make(map[string]map[int64]string),
		locations: make(map[string]map[int64]string),
	}
}

// URI returns the host:port key of the monitored session.
func (c *Client) URI() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// Events returns the channel session events are delivered on. The channel
// is never closed; callers stop reading when they tear the client down.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect dials the server and performs the join handshake. On success a
// read loop runs until the connection drops, at which point a
// DisconnectedEvent is emitted. Connect returns an error if the dial or
// handshake fails; the caller owns retry policy.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("client closed")
	}
	c.mu.RUnlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	conn.SetReadLimit(16 << 20) // data packages for large multiworlds are big

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close(websocket.StatusNormalClosure, "handshake failed")
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close tears the client down. No events are emitted for the resulting
// connection loss, and Connect refuses to run afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "monitor removed")
	}
	return nil
}

// Player returns the player occupying a slot.
func (c *Client) Player(slot int) (Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.players[slot]
	return p, ok
}

// ItemName resolves an item id in the context of the owning player's game.
// The wire flag bits are part of the lookup key shape but do not currently
// alter the result.
func (c *Client) ItemName(player int, id int64, flags int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.players[player]; ok {
		if name, ok := c.items[p.Game][id]; ok {
			return name
		}
	}
	return fmt.Sprintf("Unknown item %d", id)
}

// LocationName resolves a location id in the context of the owning
// player's game.
func (c *Client) LocationName(player int, id int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.players[player]; ok {
		if name, ok := c.locations[p.Game][id]; ok {
			return name
		}
	}
	return fmt.Sprintf("Unknown location %d", id)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Newer servers speak TLS; older room hosts are plain ws. Try secure
	// first, the way archipelago clients do.
	secure := fmt.Sprintf("wss://%s:%d", c.host, c.port)
	conn, _, err := websocket.Dial(dialCtx, secure, nil)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	plain := fmt.Sprintf("ws://%s:%d", c.host, c.port)
	conn, _, err = websocket.Dial(dialCtx, plain, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.URI(), err)
	}
	return conn, nil
}

// handshake drives RoomInfo → GetDataPackage → Connect → Connected. The
// server may interleave other packets; anything unexpected before
// Connected is ignored.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	hsCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(hsCtx)
		if err != nil {
			return fmt.Errorf("handshake read: %w", err)
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			continue
		}

		for _, raw := range raws {
			var head packetHead
			if err := json.Unmarshal(raw, &head); err != nil {
				continue
			}

			switch head.Cmd {
			case "RoomInfo":
				if err := c.write(hsCtx, conn, map[string]any{"cmd": "GetDataPackage"}); err != nil {
					return err
				}

			case "DataPackage":
				var pkg dataPackagePacket
				if err := json.Unmarshal(raw, &pkg); err == nil {
					c.storeDataPackage(pkg)
				}
				connect := connectPacket{
					Cmd:           "Connect",
					Game:          c.game,
					Name:          c.slot,
					UUID:          "archmon",
					Version:       protocolVersion,
					ItemsHandling: itemsHandlingRemoteAll,
					Tags:          []string{"Monitor", "TextOnly"},
				}
				if err := c.write(hsCtx, conn, connect); err != nil {
					return err
				}

			case "Connected":
				var pkt connectedPacket
				if err := json.Unmarshal(raw, &pkt); err != nil {
					return fmt.Errorf("decode Connected: %w", err)
				}
				c.storePlayers(pkt)
				return nil

			case "ConnectionRefused":
				var pkt refusedPacket
				json.Unmarshal(raw, &pkt)
				return fmt.Errorf("connection refused: %v", pkt.Errors)
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if !closed {
				c.emit(DisconnectedEvent{Err: err})
			}
			return
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			slog.Warn("bad packet from session server", "uri", c.URI(), "err", err)
			continue
		}
		for _, raw := range raws {
			c.handlePacket(raw)
		}
	}
}

func (c *Client) handlePacket(raw json.RawMessage) {
	var head packetHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return
	}

	switch head.Cmd {
	case "PrintJSON":
		if ev := eventFromPrintJSON(raw); ev != nil {
			c.emit(ev)
		}
	case "RoomUpdate":
		// Player aliases can change mid-session.
		var pkt connectedPacket
		if err := json.Unmarshal(raw, &pkt); err == nil && len(pkt.Players) > 0 {
			c.storePlayers(pkt)
		}
	}
}

// emit drops events when the consumer has fallen behind rather than block
// the read loop.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		slog.Warn("event dropped, consumer too slow", "uri", c.URI())
	}
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, pkt any) error {
	data, err := json.Marshal([]any{pkt})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

func (c *Client) storeDataPackage(pkg dataPackagePacket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for game, data := range pkg.Data.Games {
		items := make(map[int64]string, len(data.ItemNameToID))
		for name, id := range data.ItemNameToID {
			items[id] = name
		}
		locations := make(map[int64]string, len(data.LocationNameToID))
		for name, id := range data.LocationNameToID {
			locations[id] = name
		}
		c.items[game] = items
		c.locations[game] = locations
	}
}

func (c *Client) storePlayers(pkt connectedPacket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pkt.Players {
		name := p.Alias
		if name == "" {
			name = p.Name
		}
		player := Player{Slot: p.Slot, Name: name}
		if info, ok := pkt.SlotInfo[fmt.Sprint(p.Slot)]; ok {
			player.Game = info.Game
		} else if prev, ok := c.players[p.Slot]; ok {
			player.Game = prev.Game
		}
		c.players[p.Slot] = player
	}
}
