package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/signalnine/motifsweep/internal/trainer"
	"github.com/signalnine/motifsweep/internal/trainer/synthetic"
)

// exercise drives a short lifecycle and closes the session. Close errors are
// ignored since both ends close the transport after the close op.
func exercise(t *testing.T, s *trainer.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := s.Build(ctx, trainer.BuildParams{Model: "cnn-deep", Activation: "relu", InputShape: 200}); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := s.Compile(ctx, trainer.DefaultCompile(1e-3)); err != nil {
		t.Fatalf("compile: %v", err)
	}
	logs, err := s.FitEpoch(ctx, trainer.EpochParams{Epoch: 0, BatchSize: 100, Shuffle: true, LearningRate: 1e-3})
	if err != nil {
		t.Fatalf("fit epoch: %v", err)
	}
	if _, ok := logs["val_auroc"]; !ok {
		t.Errorf("logs missing val_auroc: %v", logs)
	}
	if err := s.Build(ctx, trainer.BuildParams{Model: "broken"}); err == nil {
		t.Error("expected build of the failing model to error")
	}
	s.Close(ctx)
}

func TestRunStdio(t *testing.T) {
	hostR, workerW := io.Pipe()
	workerR, hostW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), synthetic.Options{FailModel: "broken"}, "", workerR, workerW)
	}()

	exercise(t, trainer.NewSession(trainer.NewStreamConn(hostR, hostW)))
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after close")
	}
}

func TestRunWebsocket(t *testing.T) {
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), synthetic.Options{FailModel: "broken"}, "ws"+srv.URL[4:], nil, nil)
	}()

	var conn *websocket.Conn
	select {
	case conn = <-connCh:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never connected")
	}
	exercise(t, trainer.NewSession(trainer.NewWSConn(conn, nil)))
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after close")
	}
}

func TestRunBadSessionURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := run(ctx, synthetic.Options{}, "ws://127.0.0.1:1/session/x", nil, nil); err == nil {
		t.Error("expected dial error")
	}
}
