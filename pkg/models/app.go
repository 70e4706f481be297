package models

import "time"

// AppStatus is the registry's view of an app backend's health.
type AppStatus string

const (
	AppStatusHealthy   AppStatus = "healthy"
	AppStatusUnhealthy AppStatus = "unhealthy"
	AppStatusUnknown   AppStatus = "unknown"
)

// RegisteredApp is a deployed app backend tracked by the registry.
type RegisteredApp struct {
	AppID               string         `json:"app_id"`
	ContainerURL        string         `json:"container_url"`
	Manifest            map[string]any `json:"manifest"`
	Status              AppStatus      `json:"status"`
	RegisteredAt        time.Time      `json:"registered_at"`
	LastHealthCheck     *time.Time     `json:"last_health_check,omitempty"`
	HealthCheckFailures int            `json:"health_check_failures"`
}
