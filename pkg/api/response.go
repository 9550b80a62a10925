package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
)

// Global transaction counter
var txCounter atomic.Int32

type baseResponse struct {
	ClientTransactionID int    `json:"ClientTransactionID"`
	ServerTransactionID int    `json:"ServerTransactionID"`
	ErrorNumber         int    `json:"ErrorNumber"`
	ErrorMessage        string `json:"ErrorMessage"`
	Value               any    `json:"Value,omitempty"`
}

// handlerFunc handles a request whose query and form parameters have
// already been parsed.
type handlerFunc func(r *http.Request, params url.Values) (any, error)

// param returns the first value of a parameter. Parameter names are
// case insensitive.
func param(params url.Values, name string) (string, bool) {
	for key, values := range params {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}

// getClientTxID obtains the optional client transaction ID.
func getClientTxID(params url.Values) (int, error) {
	value, ok := param(params, "ClientTransactionID")
	if !ok {
		return 0, nil
	}

	id, err := strconv.Atoi(value)
	if err != nil || id < 0 {
		return 0, errors.New("ClientTransactionID must be a non-negative integer")
	}
	return id, nil
}

// writeResponse replaces a value that cannot be encoded with an error, so
// the client always receives a complete envelope.
func (s *Server) writeResponse(w http.ResponseWriter, response baseResponse) {
	body, err := json.Marshal(response)
	if err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
		response.Value = nil
		response.ErrorNumber = errUnspecified
		response.ErrorMessage = fmt.Sprintf("failed to encode response: %v", err)
		body, _ = json.Marshal(response)
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debugf("Failed to write response: %v", err)
	}
}

func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		txID, err := getClientTxID(r.Form)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		response := baseResponse{
			ServerTransactionID: int(txCounter.Add(1)),
			ClientTransactionID: txID,
		}

		value, err := h(r, r.Form)
		if err != nil {
			s.logger.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
			response.ErrorNumber = errorNumber(err)
			response.ErrorMessage = err.Error()
		} else {
			response.Value = value
		}

		s.writeResponse(w, response)
	}
}

func parseFloatParam(params url.Values, name string) (float64, error) {
	value, ok := param(params, name)
	if !ok {
		return 0, missingParam(name)
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidParam(name, value)
	}
	return f, nil
}

func parseIntParam(params url.Values, name string, def int) (int, error) {
	value, ok := param(params, name)
	if !ok {
		return def, nil
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, invalidParam(name, value)
	}
	return i, nil
}
