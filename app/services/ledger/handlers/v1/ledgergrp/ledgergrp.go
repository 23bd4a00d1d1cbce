// Package ledgergrp maintains the group of handlers for ledger access.
package ledgergrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v1 "github.com/greenhydro/ledger/business/web/v1"
	"github.com/greenhydro/ledger/foundation/events"
	"github.com/greenhydro/ledger/foundation/ledger/state"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
	"github.com/greenhydro/ledger/foundation/web"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide append events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Submit mines the submitted transactions into the next block in the chain.
func (h Handlers) Submit(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req submitRequest
	if err := web.Decode(r, &req); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("submit transactions", "traceid", v.TraceID, "txs", len(req.Transactions), "miner", req.MinerLabel)

	b, err := h.State.AppendBlock(ctx, req.Transactions, req.MinerLabel)
	if err != nil {
		if errors.Is(err, state.ErrAppendContention) {
			return v1.NewRequestError(err, http.StatusConflict)
		}
		return err
	}

	return web.Respond(ctx, w, toBlockModel(b), http.StatusCreated)
}

// DemoMine appends a block carrying a single demo transaction. It exists
// so the platform can showcase mining without any business event.
func (h Handlers) DemoMine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans := []tran.Tx{
		{
			Type:      tran.TypeDemo,
			Message:   "Demo mining triggered",
			TimeStamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	b, err := h.State.AppendBlock(ctx, trans, "")
	if err != nil {
		if errors.Is(err, state.ErrAppendContention) {
			return v1.NewRequestError(err, http.StatusConflict)
		}
		return err
	}

	return web.Respond(ctx, w, toBlockModel(b), http.StatusCreated)
}

// Head returns the block with the maximum block number.
func (h Handlers) Head(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := h.State.RetrieveHead()
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return v1.NewRequestError(errors.New("chain is empty"), http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, toBlockModel(b), http.StatusOK)
}

// Stats returns the chain summary consumed by the dashboards.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.State.QueryStats()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, stats, http.StatusOK)
}

// Blocks returns one page of blocks ordered by block number descending.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pi := pageInfo{Page: 1, Rows: 10}

	if page := r.URL.Query().Get("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil {
			return v1.NewRequestError(fmt.Errorf("invalid page format: %q", page), http.StatusBadRequest)
		}
		pi.Page = n
	}
	if rows := r.URL.Query().Get("rows"); rows != "" {
		n, err := strconv.Atoi(rows)
		if err != nil {
			return v1.NewRequestError(fmt.Errorf("invalid rows format: %q", rows), http.StatusBadRequest)
		}
		pi.Rows = n
	}

	if err := pi.Validate(); err != nil {
		return err
	}

	blocks, err := h.State.QueryBlocksByPage(pi.Page, pi.Rows)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, toBlockModels(blocks), http.StatusOK)
}

// Participant returns every transaction the specified participant is a
// party to, together with the block that recorded it.
func (h Handlers) Participant(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	participant := web.Param(r, "participant")

	id, err := strconv.ParseInt(participant, 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid participant id: %q", participant), http.StatusBadRequest)
	}

	trans, err := h.State.QueryTransactionsByParticipant(id)
	if err != nil {
		return err
	}

	if trans == nil {
		trans = []state.ParticipantTx{}
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Validate replays the whole chain and reports the first structural
// failure, if any. Findings come back with status 200, they are data.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.ValidateChain(), http.StatusOK)
}
