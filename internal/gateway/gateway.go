// Package gateway accepts websocket connections from trainer workers that
// run where stdio cannot reach them, such as inside containers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ReadLimit bounds a single worker message, which may carry a whole filter
// bank or the test-set predictions.
const ReadLimit = 256 << 20

var ErrUnknownSession = errors.New("unknown session")

type Gateway struct {
	Port int

	srv     *http.Server
	mu      sync.Mutex
	pending map[string]chan *websocket.Conn
}

func FindFreePort() (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port, nil
}

func (g *Gateway) URL() string {
	return fmt.Sprintf("http://localhost:%d", g.Port)
}

// SessionURL is the address a worker dials to claim token, as seen from host.
func (g *Gateway) SessionURL(host, token string) string {
	return fmt.Sprintf("ws://%s:%d/session/%s", host, g.Port, token)
}

// Start listens on a free port on all interfaces.
func Start() (*Gateway, error) {
	port, err := FindFreePort()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listening on %d: %w", port, err)
	}
	g := &Gateway{Port: port, pending: make(map[string]chan *websocket.Conn)}
	g.srv = &http.Server{Handler: g, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := g.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("warning: gateway stopped: %v", err)
		}
	}()
	return g, nil
}

// Expect registers token and returns the channel its connection arrives on.
func (g *Gateway) Expect(token string) <-chan *websocket.Conn {
	ch := make(chan *websocket.Conn, 1)
	g.mu.Lock()
	g.pending[token] = ch
	g.mu.Unlock()
	return ch
}

// Forget drops a token that will not be claimed.
func (g *Gateway) Forget(token string) {
	g.mu.Lock()
	delete(g.pending, token)
	g.mu.Unlock()
}

// Wait blocks until the worker holding token connects.
func (g *Gateway) Wait(ctx context.Context, token string, ch <-chan *websocket.Conn) (*websocket.Conn, error) {
	select {
	case conn := <-ch:
		return conn, nil
	case <-ctx.Done():
		g.Forget(token)
		return nil, fmt.Errorf("waiting for worker session: %w", ctx.Err())
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.URL.Path, "/session/")
	if !ok || token == "" {
		http.NotFound(w, r)
		return
	}
	g.mu.Lock()
	ch, ok := g.pending[token]
	delete(g.pending, token)
	g.mu.Unlock()
	if !ok {
		http.Error(w, ErrUnknownSession.Error(), http.StatusNotFound)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Printf("warning: accepting worker session: %v", err)
		return
	}
	conn.SetReadLimit(ReadLimit)
	ch <- conn
}

func (g *Gateway) Stop() error {
	if g.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.srv.Shutdown(ctx)
}

// ParseEnvFile reads KEY=value lines in dotenv style.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string)
	for _, line := range splitLines(data) {
		s := strings.TrimSpace(string(line))
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		key, val, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(key)] = stripQuotes(strings.TrimSpace(val))
	}
	return env, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
