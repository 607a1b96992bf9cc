package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/annsearch/internal/conn"
	"github.com/seanblong/annsearch/internal/query"
	"github.com/seanblong/annsearch/internal/render"
	"github.com/seanblong/annsearch/pkg/models"
)

// ErrStopped is returned by Submit once Run has returned.
var ErrStopped = errors.New("session stopped")

// Transport is the connection the session sends on. *conn.Manager
// implements it.
type Transport interface {
	Send(payload []byte) error
	State() conn.State
	OnMessage(func([]byte))
	OnError(func(error))
	OnClose(func())
}

// Display is where the session writes. ShowResults replaces the whole
// results area; ShowStatus reports problems without touching it.
type Display interface {
	ShowResults(content string)
	ShowStatus(msg string)
}

type Options struct {
	Variant query.Variant
	Render  render.Options
	// RequestTimeout resolves a pending request to an error. Zero disables it.
	RequestTimeout time.Duration
}

type event interface{}

type submitEvent struct {
	form  query.Form
	reply chan error
}

type inboundEvent struct{ payload []byte }

type transportErrorEvent struct{ err error }

type closeEvent struct{}

type timeoutEvent struct{ id uint64 }

// Session turns form submissions into queries and inbound messages into
// rendered results. All of its state is owned by the Run goroutine; the
// transport's callbacks and Submit only post events to it.
type Session struct {
	transport Transport
	display   Display
	opts      Options
	log       zerolog.Logger

	events chan event
	done   chan struct{}

	nextID  uint64
	pending uint64
}

// NewSession creates a session and registers its observers on transport.
func NewSession(transport Transport, display Display, opts Options, log zerolog.Logger) *Session {
	s := &Session{
		transport: transport,
		display:   display,
		opts:      opts,
		log:       log,
		events:    make(chan event, 64),
		done:      make(chan struct{}),
	}
	transport.OnMessage(func(p []byte) { s.post(inboundEvent{payload: p}) })
	transport.OnError(func(err error) { s.post(transportErrorEvent{err: err}) })
	transport.OnClose(func() { s.post(closeEvent{}) })
	return s
}

// Run processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Submit validates f and, if valid and the connection is open, sends the
// query and shows the searching placeholder. Invalid forms and closed
// connections are reported on the status line and returned; the results
// area is left as it was.
func (s *Session) Submit(ctx context.Context, f query.Form) error {
	reply := make(chan error, 1)
	if !s.post(submitEvent{form: f, reply: reply}) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case submitEvent:
		e.reply <- s.submit(e.form)
	case inboundEvent:
		s.receive(e.payload)
	case transportErrorEvent:
		s.display.ShowStatus("connection error: " + e.err.Error())
		s.abandonPending("connection lost")
	case closeEvent:
		s.display.ShowStatus("connection closed; restart to reconnect")
		s.abandonPending("connection closed")
	case timeoutEvent:
		if e.id != 0 && e.id == s.pending {
			s.log.Warn().Uint64("request_id", e.id).Dur("timeout", s.opts.RequestTimeout).Msg("request timed out")
			s.pending = 0
			s.display.ShowResults(render.Render(models.NewErrorEnvelope("request timed out"), s.opts.Render))
		}
	}
}

func (s *Session) submit(f query.Form) error {
	req, err := query.Build(f, s.opts.Variant)
	if err != nil {
		s.log.Debug().Err(err).Msg("submission rejected")
		s.display.ShowStatus(err.Error())
		return err
	}

	if st := s.transport.State(); st != conn.Open {
		err := fmt.Errorf("%w (state %s)", conn.ErrNotOpen, st)
		s.display.ShowStatus("not connected: " + st.String())
		return err
	}

	id := s.nextID + 1
	req.RequestID = id
	payload, err := query.Encode(req, s.opts.Variant)
	if err != nil {
		s.display.ShowStatus(err.Error())
		return err
	}
	if err := s.transport.Send(payload); err != nil {
		s.log.Error().Err(err).Msg("send failed")
		s.display.ShowStatus("send failed: " + err.Error())
		return err
	}

	s.nextID = id
	s.pending = id
	s.log.Info().Uint64("request_id", id).Str("question", req.Question).Int("top_n", req.TopN).Msg("query sent")
	s.display.ShowResults(render.Searching())

	if s.opts.RequestTimeout > 0 {
		time.AfterFunc(s.opts.RequestTimeout, func() { s.post(timeoutEvent{id: id}) })
	}
	return nil
}

func (s *Session) receive(payload []byte) {
	env, err := models.DecodeEnvelope(payload)
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(payload)).Msg("unreadable response")
		s.pending = 0
		s.display.ShowResults(render.Render(models.NewErrorEnvelope(err.Error()), s.opts.Render))
		return
	}

	// Backends that echo request ids let us drop answers to superseded
	// queries. Without an id the response is assumed to be the latest.
	if env.RequestID != 0 && env.RequestID != s.pending {
		s.log.Debug().Uint64("request_id", env.RequestID).Uint64("pending", s.pending).Msg("dropping stale response")
		return
	}
	s.pending = 0

	if env.IsError() {
		s.log.Warn().Str("error", *env.Error).Msg("backend error")
	} else {
		s.log.Info().Int("results", len(env.Results)).Float64("search_time", env.SearchTime).Msg("results received")
	}
	s.display.ShowResults(render.Render(env, s.opts.Render))
}

func (s *Session) abandonPending(reason string) {
	if s.pending == 0 {
		return
	}
	s.pending = 0
	s.display.ShowResults(render.Render(models.NewErrorEnvelope(reason), s.opts.Render))
}
