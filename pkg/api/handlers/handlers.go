// Package handlers implements the REST endpoint handlers. The dispatcher
// and presence registry are injected once at startup.
package handlers

import (
	"net/http"

	"duochat/pkg/apperr"
	"duochat/pkg/dispatch"
	"duochat/pkg/presence"
	"duochat/pkg/utils"
)

var (
	dispatcher *dispatch.Dispatcher
	registry   *presence.Registry
)

// Init wires the shared dispatcher and registry. Call before serving.
func Init(d *dispatch.Dispatcher, reg *presence.Registry) {
	dispatcher = d
	registry = reg
}

// writeErr maps a business error to its HTTP status and JSON body.
func writeErr(w http.ResponseWriter, err error) {
	utils.JSONError(w, apperr.HTTPStatus(err), err.Error())
}
