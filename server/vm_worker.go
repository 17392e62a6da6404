package server

import (
	"fmt"

	"github.com/chazu/owl/vm"
)

// vmRequest represents a unit of work to be executed on the interpreter
// goroutine.
type vmRequest struct {
	fn   func(*vm.Interpreter) (any, error)
	done chan vmResult
}

// vmResult holds the return value from an interpreter operation.
type vmResult struct {
	value any
	err   error
}

// VMWorker serializes all interpreter access through a single goroutine.
// The collector and operand stack are single-threaded; every LSP handler
// must go through the worker to avoid data races.
type VMWorker struct {
	in       *vm.Interpreter
	requests chan vmRequest
	quit     chan struct{}
	stopped  chan struct{}
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(in *vm.Interpreter) *VMWorker {
	w := &VMWorker{
		in:       in,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics. Anything fn allocated and did not
// root is reclaimed afterwards.
func (w *VMWorker) execute(fn func(*vm.Interpreter) (any, error)) vmResult {
	var result vmResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value, result.err = fn(w.in)
	}()
	stats := w.in.Collect()
	log.Debugf("worker collect: freed %d, kept %d", stats.Freed, stats.Kept)
	return result
}

// Do submits fn for execution on the interpreter goroutine and blocks until
// it completes. Returns the result and any error (including panics). fn must
// not return heap objects; they may be collected as soon as it returns.
func (w *VMWorker) Do(fn func(*vm.Interpreter) (any, error)) (any, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, fmt.Errorf("vm worker stopped")
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		return nil, fmt.Errorf("vm worker stopped")
	}
}

// Stop shuts down the worker goroutine and waits for it to exit.
func (w *VMWorker) Stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	<-w.stopped
}
