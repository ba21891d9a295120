package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// InterruptedError is the cancellation cause of a turn stopped by a signal.
type InterruptedError struct {
	Signal os.Signal
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted by %s", e.Signal)
}

// SignalContext cancels in-flight turns on SIGINT or SIGTERM. The thread of
// an interrupted turn keeps the checkpoint of its last completed stage.
type SignalContext struct {
	context.Context
	cancel context.CancelCauseFunc
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM
// with an *InterruptedError cause.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancelCause(parent)
	sc := &SignalContext{Context: ctx, cancel: cancel}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			cancel(&InterruptedError{Signal: sig})
		case <-ctx.Done():
		}
	}()
	return sc
}

// Cancel stops the context without a signal cause.
func (sc *SignalContext) Cancel() {
	sc.cancel(context.Canceled)
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	if ie := interruption(sc); ie != nil {
		return ie.Signal
	}
	return nil
}

func interruption(ctx context.Context) *InterruptedError {
	var ie *InterruptedError
	if errors.As(context.Cause(ctx), &ie) {
		return ie
	}
	return nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

// handleExecutionError maps interruptions to a clean exit. A signal
// interruption is reported on w.
func handleExecutionError(ctx context.Context, w io.Writer, err error) error {
	if err == nil {
		return nil
	}
	if !isInterrupted(err) {
		return err
	}
	if ie := interruption(ctx); ie != nil {
		printSystemMessage(w, "Turn %s; the thread keeps its last completed stage.", ie)
	}
	return nil
}
