package world

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"stonevault.gg/internal/auction"
	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/protocol"
)

// World hosts connected players and drives the economy on a fixed
// tick: expired-auction sweeps and autosaves run from the loop, while
// ledger and market calls also arrive concurrently from session
// handlers and admin HTTP (both stores are safe for that).
type World struct {
	cfg    Config
	logger *log.Logger

	ledger *econ.Ledger
	market *auction.Engine

	tick atomic.Uint64

	join    chan JoinRequest
	leave   chan string
	inbox   chan ActionEnvelope
	adjust  chan adjustReq
	snapReq chan snapshotReq
	stop    chan struct{}

	// mu guards players, inventories and stashes; taken by the loop
	// and by the Courier, which settlement paths call from any
	// goroutine.
	mu      sync.Mutex
	players map[string]*Player
	known   map[string]bool
	stash   map[string]map[string]int

	// autosave is injected by the composition root; enqueues a save
	// job and never blocks.
	autosave func(tick uint64)
}

// Player identity doubles as the ledger account: names are stable
// across sessions, so balances and deliveries survive reconnects.
type Player struct {
	ID        string
	Inventory map[string]int

	out chan []byte
}

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	PlayerID string
	Tick     uint64
	Err      string
}

type ActionEnvelope struct {
	PlayerID string
	Act      protocol.ActMsg
}

func New(cfg Config, ledger *econ.Ledger, market *auction.Engine, logger *log.Logger) *World {
	cfg.applyDefaults()
	return &World{
		cfg:     cfg,
		logger:  logger,
		ledger:  ledger,
		market:  market,
		join:    make(chan JoinRequest, 16),
		leave:   make(chan string, 16),
		inbox:   make(chan ActionEnvelope, 256),
		adjust:  make(chan adjustReq, 16),
		snapReq: make(chan snapshotReq, 4),
		stop:    make(chan struct{}),
		players: make(map[string]*Player),
		known:   make(map[string]bool),
		stash:   make(map[string]map[string]int),
	}
}

// SetAutosave wires the save scheduler. Call before Run.
func (w *World) SetAutosave(fn func(tick uint64)) { w.autosave = fn }

func (w *World) ID() string              { return w.cfg.ID }
func (w *World) Tick() uint64            { return w.tick.Load() }
func (w *World) Ledger() *econ.Ledger    { return w.ledger }
func (w *World) Market() *auction.Engine { return w.market }

func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }
func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }

func (w *World) handleJoin(req JoinRequest) {
	name := strings.TrimSpace(req.Name)
	resp := JoinResponse{Tick: w.tick.Load()}
	if name == "" {
		resp.Err = "empty player name"
		sendResp(req.Resp, resp)
		return
	}

	w.mu.Lock()
	p := w.players[name]
	if p == nil {
		p = &Player{ID: name, Inventory: make(map[string]int)}
		w.players[name] = p
		if !w.known[name] {
			w.known[name] = true
			for item, n := range w.cfg.StarterItems {
				p.Inventory[item] += n
			}
		}
	}
	// Reconnect replaces the session channel.
	p.out = req.Out
	// Items dropped at the stash while away are handed over on join.
	for item, n := range w.stash[name] {
		p.Inventory[item] += n
	}
	delete(w.stash, name)
	w.mu.Unlock()

	resp.PlayerID = name
	sendResp(req.Resp, resp)
}

// handleLeave ends the session only. The player record and its
// inventory stay so items already delivered survive the disconnect;
// a nil out channel is what marks the player offline.
func (w *World) handleLeave(id string) {
	w.mu.Lock()
	if p := w.players[id]; p != nil {
		p.out = nil
	}
	w.mu.Unlock()
}

func sendResp(ch chan JoinResponse, resp JoinResponse) {
	if ch == nil {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// AddEvent marshals and queues an event for the player's session,
// dropping the oldest pending payload under backpressure.
func (w *World) addEvent(p *Player, ev protocol.Event) {
	if p == nil || p.out == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	sendLatest(p.out, b)
}

// notify queues an event for a player by id if they are online.
func (w *World) notify(id string, ev protocol.Event) {
	w.mu.Lock()
	p := w.players[id]
	w.mu.Unlock()
	w.addEvent(p, ev)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// StashContents reports a player's fallback stash (test and admin
// helper).
func (w *World) StashContents(id string) map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int, len(w.stash[id]))
	for item, n := range w.stash[id] {
		out[item] = n
	}
	return out
}

// InventoryCount reports how many of an item a player holds.
func (w *World) InventoryCount(id, item string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p := w.players[id]; p != nil {
		return p.Inventory[item]
	}
	return 0
}

func (w *World) String() string {
	return fmt.Sprintf("world %s @%d", w.cfg.ID, w.tick.Load())
}
