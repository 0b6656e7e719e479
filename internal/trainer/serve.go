package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"nhooyr.io/websocket"
)

// Serve answers requests from a host session with b until the host sends
// close or hangs up. It is the worker side of the protocol.
func Serve(ctx context.Context, conn Conn, b Backend) error {
	for {
		data, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return b.Close(ctx)
			}
			return fmt.Errorf("reading request: %w", err)
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("warning: malformed request: %v", err)
			continue
		}

		resp := Response{ID: req.ID, OK: true}
		result, err := dispatch(ctx, b, &req)
		if err == nil && result != nil {
			resp.Result, err = json.Marshal(result)
		}
		if err != nil {
			resp.OK = false
			resp.Error = err.Error()
			resp.Result = nil
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		if err := conn.Send(ctx, out); err != nil {
			return fmt.Errorf("sending response: %w", err)
		}
		if req.Op == OpClose {
			return nil
		}
	}
}

func decode(req *Request, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return fmt.Errorf("decoding %s params: %w", req.Op, err)
	}
	return nil
}

func dispatch(ctx context.Context, b Backend, req *Request) (any, error) {
	switch req.Op {
	case OpReset:
		return nil, b.Reset(ctx)
	case OpBuild:
		var p BuildParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, b.Build(ctx, p)
	case OpCompile:
		var p CompileParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, b.Compile(ctx, p)
	case OpFitEpoch:
		var p EpochParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		logs, err := b.FitEpoch(ctx, p)
		if err != nil {
			return nil, err
		}
		return logs, nil
	case OpSaveWeights:
		var p SaveWeightsParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, b.SaveWeights(ctx, p.Path)
	case OpEvaluate:
		var p BatchParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		scores, err := b.Evaluate(ctx, p.BatchSize)
		if err != nil {
			return nil, err
		}
		return scores, nil
	case OpPredict:
		var p BatchParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		preds, err := b.Predict(ctx, p.BatchSize)
		if err != nil {
			return nil, err
		}
		return preds, nil
	case OpFilters:
		var p FilterParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		filters, err := b.Filters(ctx, p)
		if err != nil {
			return nil, err
		}
		return FiltersResult{Filters: filters}, nil
	case OpClose:
		return nil, b.Close(ctx)
	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}
