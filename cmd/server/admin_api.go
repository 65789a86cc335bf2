package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/persistence/indexdb"
	"stonevault.gg/internal/sim/world"
)

// registerAdminAPI exposes the operator surface. No auth here; deploy
// behind a trusted network boundary the same way the game port is.
func registerAdminAPI(mux *http.ServeMux, w *world.World, index *indexdb.SQLiteIndex, logger *log.Logger) {
	mux.HandleFunc("/v1/admin/balances", func(rw http.ResponseWriter, r *http.Request) {
		cat := w.Ledger().Catalog()
		cur := econ.Currency(r.URL.Query().Get("currency"))
		if cur == "" {
			cur = cat.Primary()
		}
		if _, ok := cat.Lookup(cur); !ok {
			httpError(rw, http.StatusBadRequest, "unknown currency")
			return
		}
		bals := w.Ledger().Balances(cur)
		out := make(map[string]string, len(bals))
		for acct, v := range bals {
			out[acct] = v.String()
		}
		writeJSON(rw, map[string]any{
			"tick":     w.Tick(),
			"currency": string(cur),
			"balances": out,
		})
	})

	mux.HandleFunc("/v1/admin/adjust", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpError(rw, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var body struct {
			Account  string `json:"account"`
			Currency string `json:"currency"`
			Delta    string `json:"delta"`
			Reason   string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(rw, http.StatusBadRequest, "bad json: "+err.Error())
			return
		}
		delta, err := decimal.NewFromString(body.Delta)
		if err != nil {
			httpError(rw, http.StatusBadRequest, "bad delta")
			return
		}
		cur := econ.Currency(body.Currency)
		if cur == "" {
			cur = w.Ledger().Catalog().Primary()
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		bal, err := w.RequestAdjust(ctx, body.Account, cur, delta, body.Reason)
		if err != nil {
			logger.Printf("admin adjust failed: %s %s: %v", body.Account, body.Delta, err)
			writeJSON(rw, map[string]any{"ok": false, "error": err.Error(), "balance": bal.String()})
			return
		}
		writeJSON(rw, map[string]any{"ok": true, "balance": bal.String()})
	})

	mux.HandleFunc("/v1/admin/auctions", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, map[string]any{
			"tick":     w.Tick(),
			"auctions": w.Market().Active(),
		})
	})

	mux.HandleFunc("/v1/admin/history", func(rw http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("account")
		if account == "" {
			httpError(rw, http.StatusBadRequest, "account required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		if index != nil {
			rows, err := index.RecentTransactions(r.Context(), account, limit)
			if err != nil {
				httpError(rw, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(rw, map[string]any{"account": account, "source": "index", "transactions": rows})
			return
		}
		// Index disabled: serve from the in-memory ring instead.
		writeJSON(rw, map[string]any{
			"account":      account,
			"source":       "memory",
			"transactions": w.Ledger().History(account),
		})
	})

	mux.HandleFunc("/v1/admin/settlements", func(rw http.ResponseWriter, r *http.Request) {
		if index == nil {
			httpError(rw, http.StatusServiceUnavailable, "index disabled")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := index.RecentSettlements(r.Context(), limit)
		if err != nil {
			httpError(rw, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(rw, map[string]any{"settlements": rows})
	})

	mux.HandleFunc("/v1/admin/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpError(rw, http.StatusMethodNotAllowed, "POST only")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		tick, err := w.RequestSnapshot(ctx)
		if err != nil {
			writeJSON(rw, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(rw, map[string]any{"ok": true, "tick": tick})
	})
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func httpError(rw http.ResponseWriter, code int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]string{"error": msg})
}
