// Package metrics provides Prometheus collectors for vendor API calls, entity
// polling and service calls. Collectors are registered with promauto and served
// by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ezvizbridge"

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
