package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// streamBacklog is how many recent events are kept for Last-Event-ID replay.
	streamBacklog = 500

	streamKeepalive = 15 * time.Second
)

// streamEvent is one event as sent to stream clients.
type streamEvent struct {
	Seq   uint64
	Topic string
	Data  []byte
}

// streamHub fans recorded events out to connected event-stream clients and
// keeps a bounded backlog for reconnects.
type streamHub struct {
	mu      sync.Mutex
	seq     uint64
	backlog []streamEvent
	clients map[*streamClient]struct{}
}

type streamClient struct {
	patterns []string
	ch       chan streamEvent
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[*streamClient]struct{})}
}

// broadcast assigns the next sequence number and delivers to every matching
// client. Slow clients miss events instead of blocking the caller.
func (h *streamHub) broadcast(topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := streamEvent{Seq: h.seq, Topic: topic, Data: data}
	h.backlog = append(h.backlog, evt)
	if len(h.backlog) > streamBacklog {
		h.backlog = h.backlog[len(h.backlog)-streamBacklog:]
	}

	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

// subscribe registers a client and returns the backlog after lastSeq that
// it should replay first. Registration and the backlog read happen under
// one lock so no event is lost or duplicated.
func (h *streamHub) subscribe(patterns []string, lastSeq uint64) (*streamClient, []streamEvent) {
	c := &streamClient{patterns: patterns, ch: make(chan streamEvent, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	var replay []streamEvent
	if lastSeq > 0 {
		for _, evt := range h.backlog {
			if evt.Seq > lastSeq && c.wants(evt.Topic) {
				replay = append(replay, evt)
			}
		}
	}
	return c, replay
}

func (h *streamHub) unsubscribe(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (c *streamClient) wants(topic string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if topicMatches(p, topic) {
			return true
		}
	}
	return false
}

// topicMatches matches dot-separated topics with NATS wildcards: "*" is one
// token and a trailing ">" is one or more tokens.
func topicMatches(pattern, topic string) bool {
	pt := strings.Split(pattern, ".")
	tt := strings.Split(topic, ".")
	for i, p := range pt {
		if p == ">" && i == len(pt)-1 {
			return len(tt) > i
		}
		if i >= len(tt) || (p != "*" && p != tt[i]) {
			return false
		}
	}
	return len(pt) == len(tt)
}

// handleEventStream handles GET /v1/events/stream?topics=a,b.
func (s *ClinicServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var lastSeq uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeErr(w, inputError("invalid Last-Event-ID"))
			return
		}
		lastSeq = n
	}

	client, replay := s.hub.subscribe(splitList(r.URL.Query().Get("topics")), lastSeq)
	defer s.hub.unsubscribe(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, evt := range replay {
		writeStreamEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeStreamEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, evt streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.Seq, evt.Topic, evt.Data)
}
