package panelhttp

import (
	"sync"

	"github.com/vjranagit/promdash/pkg/panel"
)

var _ panel.DatePicker = (*wsPicker)(nil)

// wsPicker is the remote implementation of panel.DatePicker: the actual
// widget lives in the browser, so Show/Hide/SetValue become outbound
// control messages and user picks arrive as inbound messages routed to
// the change channel.
type wsPicker struct {
	sess    *session
	changes chan *int64
	once    sync.Once
}

func newWSPicker(sess *session) *wsPicker {
	return &wsPicker{
		sess:    sess,
		changes: make(chan *int64, 8),
	}
}

// Show implements panel.DatePicker.
func (p *wsPicker) Show() {
	p.sess.send(serverMessage{Type: msgPickerShow})
}

// Hide implements panel.DatePicker.
func (p *wsPicker) Hide() {
	p.sess.send(serverMessage{Type: msgPickerHide})
}

// SetValue implements panel.DatePicker: pushes the authoritative instant
// into the widget's display.
func (p *wsPicker) SetValue(v *int64) {
	p.sess.send(serverMessage{Type: msgPickerSet, Instant: v})
}

// Destroy implements panel.DatePicker. Idempotent.
func (p *wsPicker) Destroy() {
	p.once.Do(func() { close(p.changes) })
}

// Changes implements panel.DatePicker.
func (p *wsPicker) Changes() <-chan *int64 {
	return p.changes
}

// changed feeds a user-driven pick from the connection into the change
// channel. Drops the event when the session is already tearing down.
func (p *wsPicker) changed(v *int64) {
	select {
	case p.changes <- v:
	case <-p.sess.done:
	}
}
