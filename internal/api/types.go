package api

import "github.com/mattjoyce/intake/internal/monitor"

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Monitors      int    `json:"monitors"`
	Tracked       int    `json:"tracked"`
}

// MonitorsResponse is returned by GET /monitors.
type MonitorsResponse struct {
	Monitors []monitor.Status `json:"monitors"`
}

// ItemsResponse is returned by GET /monitors/{name}/items.
type ItemsResponse struct {
	Monitor string             `json:"monitor"`
	Items   []monitor.ItemView `json:"items"`
}
