package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/errors"
	"github.com/wippyai/wasm-harness/worker"
)

const headlessAckTimeout = 15 * time.Second

// HeadlessAdapter drives a browser page through an already-launched driver
// endpoint. The page harness speaks the envelope schema over a websocket,
// and every message is routed the moment it arrives. Output streams in
// real time, so a hung page is visibly different from a quiet one before
// any timeout fires.
type HeadlessAdapter struct {
	agg    *aggregator.Aggregator
	status *StatusSink
	log    *zap.Logger

	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

// NewHeadlessAdapter creates the adapter. status may be nil.
func NewHeadlessAdapter(agg *aggregator.Aggregator, status *StatusSink, log *zap.Logger) *HeadlessAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeadlessAdapter{agg: agg, status: status, log: log}
}

func (a *HeadlessAdapter) Supports(k wasmharness.Kind) bool {
	return k == wasmharness.KindBrowser
}

type headlessRun struct {
	conn      *websocket.Conn
	rt        *router
	closed    chan struct{}
	closeOnce sync.Once
}

func (a *HeadlessAdapter) Launch(ctx context.Context, t Target) (*Run, error) {
	if t.DriverURL == "" {
		return nil, errors.Config("browser target %q without a driver url", t.Name)
	}

	contextID := uuid.NewString()
	rt := newRouter(a.agg, contextID)

	dialer := a.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	a.status.Line("Loading page elements...")

	conn, _, err := dialer.DialContext(ctx, t.DriverURL, nil)
	if err != nil {
		return nil, errors.New(errors.PhaseAdapter, errors.KindInstantiation).
			Target(t.Name).
			Detail("dial driver %s", t.DriverURL).
			Cause(err).
			Build()
	}

	hr := &headlessRun{conn: conn, rt: rt, closed: make(chan struct{})}

	// Tell the page which context it is and hand over the module.
	spawn := worker.Envelope{Kind: worker.MsgSpawnAck, ContextID: contextID}
	payload, _ := json.Marshal(struct {
		worker.Envelope
		Module []byte `json:"module"`
	}{Envelope: spawn, Module: t.Module})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return nil, errors.New(errors.PhaseAdapter, errors.KindInstantiation).
			Target(t.Name).
			Detail("send spawn message").
			Cause(err).
			Build()
	}

	go func() {
		defer close(hr.closed)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env worker.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				a.log.Warn("undecodable driver message", zap.String("context", contextID))
				continue
			}
			if err := rt.route(env); err != nil {
				a.log.Warn("envelope rejected", zap.String("context", contextID), zap.Error(err))
			}
		}
	}()

	select {
	case <-rt.ready:
	case <-hr.closed:
		return nil, errors.ChannelLoss(contextID)
	case <-time.After(headlessAckTimeout):
		hr.close()
		return nil, errors.New(errors.PhaseAdapter, errors.KindTimeout).
			Target(t.Name).
			Detail("no readiness acknowledgement within %s", headlessAckTimeout).
			Build()
	case <-ctx.Done():
		hr.close()
		return nil, ctx.Err()
	}

	return &Run{
		ContextID: contextID,
		Target:    t,
		Started:   time.Now(),
		wait:      func(ctx context.Context) (wasmharness.Status, error) { return a.wait(ctx, hr) },
		terminate: func() error { hr.close(); return nil },
	}, nil
}

func (a *HeadlessAdapter) wait(ctx context.Context, hr *headlessRun) (wasmharness.Status, error) {
	select {
	case status := <-hr.rt.result:
		return status, nil
	case <-hr.closed:
		select {
		case status := <-hr.rt.result:
			return status, nil
		default:
		}
		loss := errors.ChannelLoss(hr.rt.contextID)
		_ = a.agg.IngestPanic(wasmharness.PanicEvent{
			ContextID: hr.rt.contextID,
			Message:   loss.Error(),
		})
		return wasmharness.StatusCrashed, nil
	case <-ctx.Done():
		hr.close()
		return wasmharness.StatusCrashed, ctx.Err()
	}
}

func (a *HeadlessAdapter) AwaitResult(ctx context.Context, r *Run, timeout time.Duration) (wasmharness.TestRunResult, error) {
	return awaitResult(ctx, a.agg, r, timeout)
}

func (a *HeadlessAdapter) Terminate(r *Run) error {
	return r.terminate()
}

func (hr *headlessRun) close() {
	hr.closeOnce.Do(func() {
		_ = hr.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = hr.conn.Close()
	})
}
