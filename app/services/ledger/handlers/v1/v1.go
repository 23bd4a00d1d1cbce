// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/greenhydro/ledger/app/services/ledger/handlers/v1/ledgergrp"
	"github.com/greenhydro/ledger/foundation/events"
	"github.com/greenhydro/ledger/foundation/ledger/state"
	"github.com/greenhydro/ledger/foundation/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	lgh := ledgergrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/events", lgh.Events)
	app.Handle(http.MethodGet, version, "/ledger/head", lgh.Head)
	app.Handle(http.MethodGet, version, "/ledger/stats", lgh.Stats)
	app.Handle(http.MethodGet, version, "/ledger/blocks", lgh.Blocks)
	app.Handle(http.MethodGet, version, "/ledger/blocks/participant/:participant", lgh.Participant)
	app.Handle(http.MethodGet, version, "/ledger/validate", lgh.Validate)
	app.Handle(http.MethodPost, version, "/ledger/submit", lgh.Submit)
	app.Handle(http.MethodPost, version, "/ledger/demo/mine", lgh.DemoMine)
}
