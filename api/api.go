// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/vault"
	"github.com/stakehub/stakehub/vault/settlement"
)

var logger = log.WithContext("pkg", "api")

// API serves the vault's read surface over HTTP.
type API struct {
	vault *vault.Vault
}

// New returns the http handler exposing the vault's read surface.
func New(v *vault.Vault) http.Handler {
	a := &API{vault: v}

	router := mux.NewRouter()
	sub := router.PathPrefix("/").Subrouter()
	sub.Path("/vault").Methods(http.MethodGet).HandlerFunc(wrapHandler(a.handleGetVault))
	sub.Path("/batches/{index}").Methods(http.MethodGet).HandlerFunc(wrapHandler(a.handleGetBatch))
	sub.Path("/withdrawals/{id}").Methods(http.MethodGet).HandlerFunc(wrapHandler(a.handleGetWithdrawal))
	sub.Path("/accounts/{address}").Methods(http.MethodGet).HandlerFunc(wrapHandler(a.handleGetAccount))

	return handlers.CompressHandler(router)
}

func (a *API) handleGetVault(w http.ResponseWriter, _ *http.Request) error {
	balance, err := a.vault.TotalBalance()
	if err != nil {
		return err
	}
	supply, err := a.vault.TotalSupply()
	if err != nil {
		return err
	}
	exchangeRate, err := a.vault.ExchangeRate()
	if err != nil {
		return err
	}
	reserved, err := a.vault.Reserved()
	if err != nil {
		return err
	}
	paused, err := a.vault.Paused()
	if err != nil {
		return err
	}
	stl := a.vault.Settlement()
	batchCount, err := stl.BatchCount()
	if err != nil {
		return err
	}
	requestCount, err := stl.RequestCount()
	if err != nil {
		return err
	}
	cursor, err := stl.NextUnassigned()
	if err != nil {
		return err
	}
	lastSettlement, err := stl.LastSettlement()
	if err != nil {
		return err
	}
	return writeJSON(w, M{
		"totalBalance":   balance.String(),
		"totalSupply":    supply.String(),
		"exchangeRate":   exchangeRate.String(),
		"reserved":       reserved.String(),
		"paused":         paused,
		"batchCount":     batchCount,
		"requestCount":   requestCount,
		"queueCursor":    cursor,
		"lastSettlement": lastSettlement,
		"asOfBlock":      a.vault.Oracle().AsOfBlock(),
	})
}

func (a *API) handleGetBatch(w http.ResponseWriter, req *http.Request) error {
	index, err := strconv.ParseUint(mux.Vars(req)["index"], 10, 32)
	if err != nil {
		return badRequest("index: " + err.Error())
	}
	batch, err := a.vault.GetBatch(uint32(index))
	if err != nil {
		if err == settlement.ErrUnknownBatch {
			return notFound(err.Error())
		}
		return err
	}
	return writeJSON(w, M{
		"index":        index,
		"processed":    batch.Processed.String(),
		"snapshotRate": batch.SnapshotRate.String(),
		"payoutRate":   batch.PayoutRate().String(),
		"slashed":      batch.Slashed,
		"finalizedAt":  batch.FinalizedAt,
	})
}

func (a *API) handleGetWithdrawal(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return badRequest("id: " + err.Error())
	}
	wr, err := a.vault.GetWithdraw(id)
	if err != nil {
		if err == settlement.ErrUnknownWithdraw {
			return notFound(err.Error())
		}
		return err
	}
	resp := M{
		"id":          id,
		"owner":       wr.Owner.String(),
		"amount":      wr.Amount.String(),
		"queuedAt":    wr.QueuedAt,
		"cancelled":   wr.Cancelled(),
		"claimed":     wr.Claimed(),
		"cancelledAt": wr.CancelledAt,
		"claimedAt":   wr.ClaimedAt,
	}
	if wr.Assigned() {
		resp["batchIndex"] = wr.BatchIndex
	}
	return writeJSON(w, resp)
}

func (a *API) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := hub.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return badRequest("address: " + err.Error())
	}
	claims, err := a.vault.ClaimBalanceOf(addr)
	if err != nil {
		return err
	}
	adm := a.vault.Admission()
	deposited, err := adm.DepositedBy(addr)
	if err != nil {
		return err
	}
	remaining, err := adm.RemainingAccountLimit(addr)
	if err != nil {
		return err
	}
	resp := M{
		"address":      addr.String(),
		"claimBalance": claims.String(),
		"deposited":    deposited.String(),
	}
	if remaining != nil {
		resp["remainingLimit"] = remaining.String()
	}
	return writeJSON(w, resp)
}

// Serve runs the API on addr until the listener fails.
func Serve(addr string, handler http.Handler) error {
	logger.Info("API server listening", "addr", addr)
	return http.ListenAndServe(addr, handlers.RecoveryHandler()(handler))
}
