package api

import "github.com/mattjoyce/hype/internal/hype"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	State         string `json:"state"`
	Workers       int    `json:"workers"`
	Journal       bool   `json:"journal"`
}

// GroupSizeRequest is the body of PUT /stage/group-size.
type GroupSizeRequest struct {
	GroupSize uint32 `json:"group_size"`
}

// GroupSizeResponse echoes the value now in effect.
type GroupSizeResponse struct {
	GroupSize uint32 `json:"group_size"`
}

// ChildrenResponse is returned by GET /stage/children.
type ChildrenResponse struct {
	Children []hype.Child `json:"children"`
}
