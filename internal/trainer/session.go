package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/signalnine/motifsweep/internal/export"
)

// Session is the host side of the worker protocol.
type Session struct {
	conn Conn

	mu   sync.Mutex
	next uint64
}

func NewSession(conn Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) call(ctx context.Context, op string, params, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	req := Request{ID: s.next, Op: op}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", op, err)
		}
		req.Params = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}
	if err := s.conn.Send(ctx, data); err != nil {
		return fmt.Errorf("sending %s: %w", op, err)
	}

	for {
		data, err := s.conn.Recv(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", op, err)
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decoding %s response: %w", op, err)
		}
		// Answers to requests abandoned by a cancelled call.
		if resp.ID != req.ID {
			log.Printf("warning: dropping stale worker response %d (want %d)", resp.ID, req.ID)
			continue
		}
		if !resp.OK {
			return &WorkerError{Op: op, Message: resp.Error}
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("decoding %s result: %w", op, err)
			}
		}
		return nil
	}
}

func (s *Session) Reset(ctx context.Context) error {
	return s.call(ctx, OpReset, nil, nil)
}

func (s *Session) Build(ctx context.Context, p BuildParams) error {
	return s.call(ctx, OpBuild, p, nil)
}

func (s *Session) Compile(ctx context.Context, p CompileParams) error {
	return s.call(ctx, OpCompile, p, nil)
}

func (s *Session) FitEpoch(ctx context.Context, p EpochParams) (Logs, error) {
	var logs Logs
	if err := s.call(ctx, OpFitEpoch, p, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Session) SaveWeights(ctx context.Context, path string) error {
	return s.call(ctx, OpSaveWeights, SaveWeightsParams{Path: path}, nil)
}

func (s *Session) Evaluate(ctx context.Context, batchSize int) (Logs, error) {
	var scores Logs
	if err := s.call(ctx, OpEvaluate, BatchParams{BatchSize: batchSize}, &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *Session) Predict(ctx context.Context, batchSize int) (*Predictions, error) {
	var p Predictions
	if err := s.call(ctx, OpPredict, BatchParams{BatchSize: batchSize}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Session) Filters(ctx context.Context, p FilterParams) ([]export.Filter, error) {
	var res FiltersResult
	if err := s.call(ctx, OpFilters, p, &res); err != nil {
		return nil, err
	}
	return res.Filters, nil
}

// Close asks the worker to exit and releases the connection.
func (s *Session) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.call(closeCtx, OpClose, nil, nil); err != nil {
		log.Printf("warning: closing worker session: %v", err)
	}
	return s.conn.Close()
}
