// Package transporttest provides scripted transport doubles: a Dialer that records every
// dial and a Conn whose inbound frames and disconnects are driven by the test.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatbot-client/pkg/transport"
)

// ErrClosed is returned by ReadMessage/WriteMessage once the connection has been dropped.
var ErrClosed = errors.New("transporttest: connection closed")

// Conn is a scripted connection.
type Conn struct {
	URL string

	// OnSend, when set, is called synchronously with every outbound frame.
	OnSend func(c *Conn, data []byte)

	inbound   chan []byte
	sent      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	history [][]byte
}

func NewConn(url string) *Conn {
	return &Conn{
		URL:     url,
		inbound: make(chan []byte, 256),
		sent:    make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

var _ transport.Conn = &Conn{}

// ReadMessage delivers queued inbound frames before reporting a drop.
func (c *Conn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.inbound:
		return b, nil
	default:
	}
	select {
	case b := <-c.inbound:
		return b, nil
	case <-c.closed:
		select {
		case b := <-c.inbound:
			return b, nil
		default:
		}
		return nil, ErrClosed
	}
}

func (c *Conn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	cp := append([]byte(nil), data...)
	c.mu.Lock()
	c.history = append(c.history, cp)
	c.mu.Unlock()
	select {
	case c.sent <- cp:
	default:
	}
	if c.OnSend != nil {
		c.OnSend(c, cp)
	}
	return nil
}

func (c *Conn) Close() error {
	c.Drop()
	return nil
}

// Push queues an inbound frame. Strings and byte slices are sent verbatim, anything else
// is JSON encoded.
func (c *Conn) Push(frame any) {
	var data []byte
	switch v := frame.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		data = b
	}
	c.inbound <- data
}

// Drop simulates the remote side closing the connection.
func (c *Conn) Drop() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// NextSent waits for the next outbound frame.
func (c *Conn) NextSent(timeout time.Duration) ([]byte, error) {
	select {
	case b := <-c.sent:
		return b, nil
	case <-time.After(timeout):
		return nil, errors.New("transporttest: no frame sent before timeout")
	}
}

// Sent returns every outbound frame so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.history...)
}

// Dialer hands out Conns and records dial attempts.
type Dialer struct {
	// FailFirst makes the first N dials fail.
	FailFirst int
	// OnDial, when set, configures each new Conn before it is returned.
	OnDial func(c *Conn)

	mu         sync.Mutex
	failAlways bool
	dials      int
	urls       []string
	conns      []*Conn
	ready      chan *Conn
}

var _ transport.Dialer = &Dialer{}

func (d *Dialer) Dial(ctx context.Context, rawURL string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, rawURL)
	fail := d.failAlways || d.dials <= d.FailFirst
	if d.ready == nil {
		d.ready = make(chan *Conn, 64)
	}
	ready := d.ready
	d.mu.Unlock()
	if fail {
		return nil, errors.Errorf("transporttest: dial %s refused", rawURL)
	}

	c := NewConn(rawURL)
	if d.OnDial != nil {
		d.OnDial(c)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	select {
	case ready <- c:
	default:
	}
	return c, nil
}

// SetFailAlways makes every following dial fail (or succeed again).
func (d *Dialer) SetFailAlways(fail bool) {
	d.mu.Lock()
	d.failAlways = fail
	d.mu.Unlock()
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Last returns the most recent successful connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// NextConn waits for the next successful dial.
func (d *Dialer) NextConn(timeout time.Duration) (*Conn, error) {
	d.mu.Lock()
	if d.ready == nil {
		d.ready = make(chan *Conn, 64)
	}
	ready := d.ready
	d.mu.Unlock()
	select {
	case c := <-ready:
		return c, nil
	case <-time.After(timeout):
		return nil, errors.New("transporttest: no connection dialed before timeout")
	}
}
