package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

// errorStatus maps error kinds to HTTP status codes
var errorStatus = map[contracts.ErrorKind]int{
	contracts.KindNotConnected:          http.StatusServiceUnavailable,
	contracts.KindValidation:            http.StatusBadRequest,
	contracts.KindResolution:            http.StatusNotFound,
	contracts.KindMarketDataUnavailable: http.StatusGatewayTimeout,
	contracts.KindBrokerRejection:       http.StatusBadGateway,
	contracts.KindTimeout:               http.StatusGatewayTimeout,
}

// StatusFor returns the HTTP status of err
func StatusFor(err error) int {
	if status, ok := errorStatus[contracts.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, StatusFor(err), map[string]string{
		"status":  "error",
		"kind":    string(contracts.KindOf(err)),
		"message": contracts.Message(err),
	})
}

// jsonNumber renders v as a bare JSON number, null when absent
func jsonNumber(v decimal.NullDecimal) interface{} {
	if !v.Valid {
		return nil
	}
	return json.Number(v.Decimal.String())
}
