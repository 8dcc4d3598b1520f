package checkpoint

import (
	"context"
	"errors"
	"testing"
)

func TestCheck_NoSignal(t *testing.T) {
	t.Parallel()

	if err := Check(context.Background()); err != nil {
		t.Fatalf("Check without signal = %v, want nil", err)
	}
}

func TestCheck_Fired(t *testing.T) {
	t.Parallel()

	sig := NewSignal()
	ctx := WithSignal(context.Background(), sig)
	if err := Check(ctx); err != nil {
		t.Fatalf("Check before Fire = %v, want nil", err)
	}

	sig.Fire()
	sig.Fire()

	if !sig.Fired() {
		t.Error("Fired() = false after Fire")
	}
	if err := Check(ctx); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Check after Fire = %v, want ErrCancelled", err)
	}
	select {
	case <-sig.Done():
	default:
		t.Error("Done channel not closed after Fire")
	}
	if ctx.Err() != nil {
		t.Error("firing the signal must not cancel the context")
	}
}

func TestCheck_ContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(WithSignal(context.Background(), NewSignal()))
	cancel()
	if err := Check(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Check = %v, want context.Canceled", err)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != nil {
		t.Error("expected nil signal")
	}
	sig := NewSignal()
	if FromContext(WithSignal(context.Background(), sig)) != sig {
		t.Error("FromContext did not return the stored signal")
	}
}
