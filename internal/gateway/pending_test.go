package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ayano-dev/clawlink/internal/protocol"
)

func TestPendingResolveOK(t *testing.T) {
	p := newPendingTable(time.Second, slog.Default())
	e := p.add()

	p.resolve(e.id, true, json.RawMessage(`{"status":"accepted"}`), nil)

	select {
	case res := <-e.ch:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if string(res.payload) != `{"status":"accepted"}` {
			t.Fatalf("payload = %s", res.payload)
		}
	default:
		t.Fatal("result not delivered")
	}
}

func TestPendingResolveRejection(t *testing.T) {
	p := newPendingTable(time.Second, slog.Default())
	e := p.add()

	p.resolve(e.id, false, nil, &protocol.ErrorInfo{Message: "Invalid token"})

	res := <-e.ch
	var srvErr *ServerError
	if !errors.As(res.err, &srvErr) {
		t.Fatalf("want ServerError, got %v", res.err)
	}
	if srvErr.Message != "Invalid token" {
		t.Fatalf("message = %q", srvErr.Message)
	}
}

func TestPendingTimeout(t *testing.T) {
	p := newPendingTable(20*time.Millisecond, slog.Default())
	e := p.add()

	select {
	case res := <-e.ch:
		if !errors.Is(res.err, ErrRequestTimeout) {
			t.Fatalf("want ErrRequestTimeout, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}

	// A late response for the expired id is dropped, not redelivered.
	p.resolve(e.id, true, nil, nil)
	select {
	case res := <-e.ch:
		t.Fatalf("late response delivered: %+v", res)
	default:
	}
}

func TestPendingUnknownIDDropped(t *testing.T) {
	p := newPendingTable(time.Second, slog.Default())
	e := p.add()

	p.resolve("no-such-id", true, json.RawMessage(`{}`), nil)
	select {
	case res := <-e.ch:
		t.Fatalf("unrelated entry completed: %+v", res)
	default:
	}
}

func TestPendingFailAll(t *testing.T) {
	p := newPendingTable(time.Second, slog.Default())
	a := p.add()
	b := p.add()

	p.failAll(ErrSessionClosed)

	for _, e := range []*pendingEntry{a, b} {
		res := <-e.ch
		if !errors.Is(res.err, ErrSessionClosed) {
			t.Fatalf("want ErrSessionClosed, got %v", res.err)
		}
	}
}
