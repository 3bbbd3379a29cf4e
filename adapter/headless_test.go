package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/internal/minwasm"
	"github.com/wippyai/wasm-harness/worker"
)

type spawnMessage struct {
	worker.Envelope
	Module []byte `json:"module"`
}

// fakeDriver is a stand-in page harness: it reads the spawn message and
// plays back a scripted sequence of envelopes.
func fakeDriver(t *testing.T, script func(conn *websocket.Conn, contextID string)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var spawn spawnMessage
		if err := json.Unmarshal(data, &spawn); err != nil {
			t.Errorf("undecodable spawn message: %v", err)
			return
		}
		if len(spawn.Module) == 0 {
			t.Error("spawn message carried no module")
		}
		script(conn, spawn.ContextID)
	}))
}

func writeEnvelope(conn *websocket.Conn, env worker.Envelope) {
	payload, _ := json.Marshal(env)
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHeadlessAdapterStreamsAndCollects(t *testing.T) {
	agg := aggregator.New(nil)

	srv := fakeDriver(t, func(conn *websocket.Conn, id string) {
		writeEnvelope(conn, worker.Envelope{Kind: worker.MsgSpawnAck, ContextID: id})
		writeEnvelope(conn, worker.Envelope{Kind: worker.MsgLog, ContextID: id, Events: []wasmharness.LogEvent{
			{ContextID: id, Seq: 1, Payload: "console line"},
			{ContextID: id, Seq: 2, Payload: "another"},
		}})
		writeEnvelope(conn, worker.Envelope{Kind: worker.MsgResult, ContextID: id, Status: wasmharness.StatusPassed})
		_, _, _ = conn.ReadMessage() // hold until the client closes
	})
	defer srv.Close()

	ad := NewHeadlessAdapter(agg, nil, nil)
	r, err := ad.Launch(context.Background(), Target{
		Kind:      wasmharness.KindBrowser,
		Name:      "chrome",
		Module:    minwasm.Empty(),
		DriverURL: wsURL(srv),
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	res, err := ad.AwaitResult(context.Background(), r, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if res.Status != wasmharness.StatusPassed {
		t.Fatalf("status = %v, want passed", res.Status)
	}
	lines := payloads(res.Events)
	if len(lines) != 2 || lines[0] != "console line" || lines[1] != "another" {
		t.Fatalf("log lines = %v", lines)
	}

	_ = ad.Terminate(r)
}

func TestHeadlessAdapterPanicCrashes(t *testing.T) {
	agg := aggregator.New(nil)

	srv := fakeDriver(t, func(conn *websocket.Conn, id string) {
		writeEnvelope(conn, worker.Envelope{Kind: worker.MsgSpawnAck, ContextID: id})
		writeEnvelope(conn, worker.Envelope{Kind: worker.MsgPanic, ContextID: id, Panic: &wasmharness.PanicEvent{
			ContextID: id,
			Message:   "Uncaught TypeError",
		}})
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	ad := NewHeadlessAdapter(agg, nil, nil)
	r, err := ad.Launch(context.Background(), Target{
		Kind:      wasmharness.KindBrowser,
		Name:      "chrome",
		Module:    minwasm.Empty(),
		DriverURL: wsURL(srv),
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	res, err := ad.AwaitResult(context.Background(), r, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if res.Status != wasmharness.StatusCrashed {
		t.Fatalf("status = %v, want crashed", res.Status)
	}
	var sawPanic bool
	for _, ev := range res.Events {
		if ev.Panic != nil && strings.Contains(ev.Panic.Message, "TypeError") {
			sawPanic = true
		}
	}
	if !sawPanic {
		t.Fatalf("panic not in event log: %+v", res.Events)
	}

	_ = ad.Terminate(r)
}

func TestHeadlessAdapterConnectionLoss(t *testing.T) {
	agg := aggregator.New(nil)

	srv := fakeDriver(t, func(conn *websocket.Conn, id string) {
		writeEnvelope(conn, worker.Envelope{Kind: worker.MsgSpawnAck, ContextID: id})
		// Drop the connection without a final message.
	})
	defer srv.Close()

	ad := NewHeadlessAdapter(agg, nil, nil)
	r, err := ad.Launch(context.Background(), Target{
		Kind:      wasmharness.KindBrowser,
		Name:      "chrome",
		Module:    minwasm.Empty(),
		DriverURL: wsURL(srv),
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	res, err := ad.AwaitResult(context.Background(), r, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if res.Status != wasmharness.StatusCrashed {
		t.Fatalf("status = %v, want crashed", res.Status)
	}
	var sawLoss bool
	for _, ev := range res.Events {
		if ev.Panic != nil && strings.Contains(ev.Panic.Message, "disappeared") {
			sawLoss = true
		}
	}
	if !sawLoss {
		t.Fatalf("connection loss not recorded: %+v", res.Events)
	}
}

func TestHeadlessAdapterRequiresDriverURL(t *testing.T) {
	ad := NewHeadlessAdapter(aggregator.New(nil), nil, nil)
	if _, err := ad.Launch(context.Background(), Target{Kind: wasmharness.KindBrowser, Name: "chrome"}); err == nil {
		t.Fatal("missing driver url accepted")
	}
}
