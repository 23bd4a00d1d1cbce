// Package worker implements the background processing for the ledger:
// a periodic audit that replays the chain and reports tampering.
package worker

import (
	"sync"
	"time"

	"github.com/greenhydro/ledger/foundation/ledger/state"
)

// Worker manages the background workflows for the ledger.
type Worker struct {
	state     *state.State
	wg        sync.WaitGroup
	ticker    *time.Ticker
	shut      chan struct{}
	evHandler state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, auditInterval time.Duration, evHandler state.EventHandler) {
	w := Worker{
		state:     st,
		ticker:    time.NewTicker(auditInterval),
		shut:      make(chan struct{}),
		evHandler: evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.auditOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// =============================================================================

// auditOperations periodically replays the chain to detect tampering.
func (w *Worker) auditOperations() {
	w.evHandler("worker: auditOperations: G started")
	defer w.evHandler("worker: auditOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runChainAudit()
			}
		case <-w.shut:
			w.evHandler("worker: auditOperations: received shut signal")
			return
		}
	}
}

// runChainAudit validates the whole chain and reports the outcome. A
// failed audit is an operator signal, not a reason to stop the service.
func (w *Worker) runChainAudit() {
	w.evHandler("worker: runChainAudit: started")
	defer w.evHandler("worker: runChainAudit: completed")

	result := w.state.ValidateChain()
	if !result.Valid {
		w.evHandler("worker: runChainAudit: AUDIT FAILED: blk[%d] reason[%s]", result.FailingIndex, result.Reason)
		return
	}

	w.evHandler("worker: runChainAudit: chain valid")
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
