// Package sse streams committed vault changes to HTTP clients as
// Server-Sent Events.
//
// Every document change becomes a document.<kind> event. Because most
// clients only redraw the link graph, graph.updated is coalesced: it fires
// for the first change after a quiet period and once more at the end of a
// burst. Events carry increasing ids and the most recent ones are kept, so a
// client reconnecting with Last-Event-ID receives what it missed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/paravault/internal/noteservice"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// GraphUpdate is the payload of graph.updated.
type GraphUpdate struct {
	// Changes is the number of document changes folded into this event.
	Changes int `json:"changes"`
	// Last is the path of the most recent change.
	Last string `json:"last"`
}

const (
	// clientBuffer is how many undelivered messages a slow client may queue
	// before further messages to it are dropped.
	clientBuffer = 64
	// historySize is how many past events are kept for Last-Event-ID replay.
	historySize = 128
	keepAlive   = 15 * time.Second
)

type message struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Broker fans vault changes out to connected clients. One goroutine owns the
// client set, the replay history and the graph coalescing state.
type Broker struct {
	graphWindow time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan noteservice.Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ noteservice.Notifier = (*Broker)(nil)

// NewBroker starts a broker. graph.updated is emitted at most once per
// graphWindow, plus a trailing event for changes that arrived inside it.
func NewBroker(graphWindow time.Duration) *Broker {
	if graphWindow <= 0 {
		graphWindow = 2 * time.Second
	}
	b := &Broker{
		graphWindow:   graphWindow,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan noteservice.Change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func encode(id uint64, e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, e.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	var (
		clients = make(map[chan []byte]struct{})
		history []message
		seq     uint64

		lastGraph time.Time
		pending   GraphUpdate // changes not yet covered by graph.updated
		trailing  *time.Timer
		trailCh   <-chan time.Time
	)

	send := func(e Event) {
		raw, err := encode(seq+1, e)
		if err != nil {
			return
		}
		seq++
		history = append(history, message{id: seq, raw: raw})
		if len(history) > historySize {
			history = history[len(history)-historySize:]
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
			}
		}
	}

	flushGraph := func(now time.Time) {
		lastGraph = now
		send(Event{Type: "graph.updated", Data: pending})
		pending = GraphUpdate{}
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			if sub.after > 0 {
				for _, m := range history {
					if m.id <= sub.after {
						continue
					}
					select {
					case sub.ch <- m.raw:
					default:
					}
				}
			}
			clients[sub.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			send(e)

		case c := <-b.changeCh:
			send(Event{Type: "document." + string(c.Kind), Data: c})
			pending.Changes++
			pending.Last = c.Path
			if now := time.Now(); now.Sub(lastGraph) >= b.graphWindow {
				flushGraph(now)
			} else if trailCh == nil {
				trailing = time.NewTimer(b.graphWindow - now.Sub(lastGraph))
				trailCh = trailing.C
			}

		case now := <-trailCh:
			trailing, trailCh = nil, nil
			if pending.Changes > 0 {
				flushGraph(now)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives events from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeAfter(0)
}

// SubscribeAfter adds a client and first replays the retained events with
// an id greater than after. Zero replays nothing.
func (b *Broker) SubscribeAfter(after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{ch: ch, after: after}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an arbitrary event to every client.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- e:
	case <-b.stopped:
	}
}

// Notify implements noteservice.Notifier. It never blocks the caller: when
// the queue is full the change is dropped.
func (b *Broker) Notify(c noteservice.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	default:
	}
}

// ServeHTTP streams events until the client goes away. A Last-Event-ID
// header resumes after that event when it is still retained.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var after uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		after, _ = strconv.ParseUint(v, 10, 64)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeAfter(after)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
