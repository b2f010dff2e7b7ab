package panelhttp

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/vjranagit/promdash/pkg/panel"
)

// Inbound message types.
const (
	msgOptions       = "options"
	msgExecute       = "execute"
	msgRefresh       = "refresh"
	msgTimeIncrease  = "time.increase"
	msgTimeDecrease  = "time.decrease"
	msgTimeClear     = "time.clear"
	msgPickerChanged = "picker.changed"
)

// Outbound message types.
const (
	msgState      = "state"
	msgQuery      = "query"
	msgPickerSet  = "picker.set"
	msgPickerShow = "picker.show"
	msgPickerHide = "picker.hide"
)

type clientMessage struct {
	Type    string         `json:"type"`
	Options *panel.Options `json:"options,omitempty"`
	Expr    string         `json:"expr,omitempty"`
	// Instant carries the picked instant in epoch milliseconds; nil
	// means cleared.
	Instant *int64 `json:"instant,omitempty"`
}

type serverMessage struct {
	Type    string         `json:"type"`
	Session string         `json:"session,omitempty"`
	Options *panel.Options `json:"options,omitempty"`
	State   *panel.State   `json:"state,omitempty"`
	Instant *int64         `json:"instant,omitempty"`
	Expr    *string        `json:"expr,omitempty"`
}

// session serializes all panel input on one goroutine (run), so the
// coordinator and time controller see a single logical thread of
// reactions. Outbound traffic goes through a dedicated writer goroutine,
// as the connection allows only one concurrent writer.
type session struct {
	id     string
	conn   *websocket.Conn
	log    *slog.Logger
	coord  *panel.Coordinator
	tc     *panel.TimeController
	picker *wsPicker
	opts   panel.Options

	out        chan serverMessage
	events     chan clientMessage
	readerDone chan struct{}
	done       chan struct{}
}

func newSession(s *Server, id string, conn *websocket.Conn) *session {
	sess := &session{
		id:         id,
		conn:       conn,
		log:        s.log.With("session", id),
		opts:       s.Defaults(),
		out:        make(chan serverMessage, 64),
		events:     make(chan clientMessage, 16),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	sess.picker = newWSPicker(sess)
	sess.tc = panel.NewTimeController(sess.opts.RangeSeconds, s.now, sess.applyInstant)
	sess.coord = panel.NewCoordinator(panel.CoordinatorConfig{
		Client:  s.client,
		Logger:  sess.log,
		Metrics: s.metrics,
		Now:     s.now,
		Callbacks: panel.Callbacks{
			OnOptionsChanged: sess.onOptionsChanged,
			OnExecuteQuery:   sess.onExecuteQuery,
			OnStateChanged:   sess.onStateChanged,
		},
	})
	return sess
}

// Defaults returns a copy of the server's default options.
func (s *Server) Defaults() panel.Options {
	return s.defaults
}

// run drives the session until the connection drops. The picker is
// destroyed and the coordinator closed on every exit path.
func (s *session) run() {
	go s.writeLoop()
	go s.readLoop()

	defer func() {
		s.coord.Close()
		s.picker.Destroy()
		close(s.done)
		s.conn.Close()
	}()

	// Initial render: push the starting options and kick off the first
	// execution with them.
	s.syncPicker(s.opts.Mode)
	s.sendOptions()
	s.coord.SetOptions(s.opts)

	changes := s.picker.Changes()
	for {
		select {
		case <-s.readerDone:
			return
		case msg := <-s.events:
			s.handle(msg)
		case v, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.tc.PickerChanged(v)
		}
	}
}

func (s *session) handle(msg clientMessage) {
	switch msg.Type {
	case msgOptions:
		if msg.Options == nil {
			s.log.Warn("options message without options payload")
			return
		}
		s.setOptions(*msg.Options)
	case msgExecute:
		s.coord.Execute(msg.Expr)
	case msgRefresh:
		s.coord.Refresh()
	case msgTimeIncrease:
		s.tc.Increase(s.opts.EndTime)
	case msgTimeDecrease:
		s.tc.Decrease(s.opts.EndTime)
	case msgTimeClear:
		s.tc.Clear()
	default:
		s.log.Warn("unknown panel message", "type", msg.Type)
	}
}

// setOptions applies a full options update from the client and keeps the
// picker display and range shifts consistent with it.
func (s *session) setOptions(next panel.Options) {
	prev := s.opts
	s.opts = next
	s.tc.SetRange(next.RangeSeconds)
	if prev.Mode != next.Mode {
		s.syncPicker(next.Mode)
	}
	if !int64PtrEqual(prev.EndTime, next.EndTime) {
		s.picker.SetValue(next.EndTime)
	}
	s.coord.SetOptions(next)
}

// syncPicker keeps the picker widget's visibility tied to the view: the
// time controls belong to the graph view.
func (s *session) syncPicker(mode panel.Mode) {
	if mode == panel.ModeGraph {
		s.picker.Show()
	} else {
		s.picker.Hide()
	}
}

// applyInstant is the TimeController change callback: the emitted
// instant becomes the authoritative end time, the picker is updated to
// display it, and the coordinator re-executes.
func (s *session) applyInstant(v *int64) {
	s.opts.EndTime = v
	s.picker.SetValue(v)
	s.sendOptions()
	s.coord.SetOptions(s.opts)
}

// onOptionsChanged handles coordinator-driven option rewrites (e.g. a
// transiently executed expression being persisted).
func (s *session) onOptionsChanged(opts panel.Options) {
	s.opts.Expr = opts.Expr
	s.sendOptions()
}

func (s *session) onExecuteQuery(expr string) {
	e := expr
	s.send(serverMessage{Type: msgQuery, Expr: &e})
}

func (s *session) onStateChanged(state panel.State) {
	s.send(serverMessage{Type: msgState, State: &state})
}

func (s *session) sendOptions() {
	opts := s.opts
	s.send(serverMessage{Type: msgOptions, Options: &opts})
}

func (s *session) send(msg serverMessage) {
	msg.Session = s.id
	select {
	case s.out <- msg:
	case <-s.done:
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case msg := <-s.out:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug("write failed", "err", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop decodes inbound messages, routing picker changes onto the
// picker's change channel and everything else onto the event channel.
func (s *session) readLoop() {
	defer close(s.readerDone)
	for {
		var msg clientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", "err", err)
			}
			return
		}
		if msg.Type == msgPickerChanged {
			s.picker.changed(msg.Instant)
			continue
		}
		select {
		case s.events <- msg:
		case <-s.done:
			return
		}
	}
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
