// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/agorachain/agora/app/services/node/handlers/v1/private"
	"github.com/agorachain/agora/app/services/node/handlers/v1/public"
	"github.com/agorachain/agora/foundation/blockchain/propagate"
	"github.com/agorachain/agora/foundation/blockchain/state"
	"github.com/agorachain/agora/foundation/events"
	"github.com/agorachain/agora/foundation/nameservice"
	"github.com/agorachain/agora/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
	Hub   *propagate.Hub
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/supply", pbl.Supply)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", pbl.BlocksByHeight)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list/:account", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/receipt/:hash", pbl.Receipt)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
	app.Handle(http.MethodGet, version, "/contract/code/:account", pbl.ContractCode)
	app.Handle(http.MethodGet, version, "/contract/storage/:account", pbl.ContractStorage)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Hub:   cfg.Hub,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByHeight)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransaction)

	// The propagation channel is only served by the proposer.
	if cfg.Hub != nil {
		app.Handle(http.MethodGet, version, "/node/propagate", prv.Propagate)
	}
}