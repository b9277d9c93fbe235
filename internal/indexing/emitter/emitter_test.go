package emitter

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/hotstore/internal/core/domain"
)

type recordingEmitter struct {
	events []domain.RevertEvent
	err    error
	closed bool
}

func (r *recordingEmitter) EmitRevert(_ context.Context, e domain.RevertEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingEmitter) Close() error {
	r.closed = true
	return nil
}

func TestMulti_FansOutAndKeepsFirstError(t *testing.T) {
	failing := &recordingEmitter{err: errors.New("broker down")}
	ok := &recordingEmitter{}
	m := Multi{failing, ok, NewLogEmitter(nil)}

	err := m.EmitRevert(context.Background(), domain.RevertEvent{Height: 7})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected broker error, got %v", err)
	}
	if len(ok.events) != 1 || ok.events[0].Height != 7 {
		t.Errorf("expected the healthy emitter to still receive the event, got %+v", ok.events)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !failing.closed || !ok.closed {
		t.Error("expected every emitter to be closed")
	}
}
