package trainer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"nhooyr.io/websocket"

	"github.com/signalnine/motifsweep/internal/gateway"
)

// Conn carries whole protocol messages in both directions.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// streamConn frames messages as newline-delimited JSON over a byte stream,
// such as a worker's stdin and stdout.
type streamConn struct {
	w   io.WriteCloser
	wmu sync.Mutex

	lines   chan []byte
	readErr error
	done    chan struct{}
	once    sync.Once
	onClose func() error
}

// NewStreamConn reads messages from r and writes them to w.
func NewStreamConn(r io.Reader, w io.WriteCloser) Conn {
	return newStreamConn(r, w, nil)
}

func newStreamConn(r io.Reader, w io.WriteCloser, onClose func() error) *streamConn {
	c := &streamConn{
		w:       w,
		lines:   make(chan []byte),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

func (c *streamConn) readLoop(br *bufio.Reader) {
	defer close(c.lines)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			select {
			case c.lines <- line:
			case <-c.done:
				c.readErr = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *streamConn) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(append(msg, '\n')); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

func (c *streamConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return nil, c.readErr
		}
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.w.Close()
		if c.onClose != nil {
			if cerr := c.onClose(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

type wsConn struct {
	c       *websocket.Conn
	once    sync.Once
	onClose func() error
}

// NewWSConn wraps an established websocket. onClose, when set, runs after
// the socket is closed.
func NewWSConn(c *websocket.Conn, onClose func() error) Conn {
	return &wsConn{c: c, onClose: onClose}
}

// DialSession connects a worker to the session URL handed out by the host.
func DialSession(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	c.SetReadLimit(gateway.ReadLimit)
	return NewWSConn(c, nil), nil
}

func (w *wsConn) Send(ctx context.Context, msg []byte) error {
	return w.c.Write(ctx, websocket.MessageText, msg)
}

func (w *wsConn) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		err = w.c.Close(websocket.StatusNormalClosure, "done")
		if w.onClose != nil {
			if cerr := w.onClose(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
