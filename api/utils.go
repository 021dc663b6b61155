// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"encoding/json"
	"net/http"

	"github.com/stakehub/stakehub/reverts"
)

// M is a shortcut for ad-hoc JSON objects.
type M map[string]any

type handlerFunc func(w http.ResponseWriter, req *http.Request) error

// wrapHandler turns the error-returning handler style into http.HandlerFunc,
// mapping named reverts to 400 and everything else to 500.
func wrapHandler(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		if he, ok := err.(*httpError); ok {
			http.Error(w, he.msg, he.status)
			return
		}
		if reverts.IsRevertErr(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func notFound(msg string) error {
	return &httpError{http.StatusNotFound, msg}
}

func badRequest(msg string) error {
	return &httpError{http.StatusBadRequest, msg}
}

func writeJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(obj)
}
