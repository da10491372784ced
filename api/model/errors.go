package model

import "errors"

// Rejection reasons shared by the intake boundary, the remediation engine
// and the HTTP layer. Wrapped with %w at the point of failure and matched
// with errors.Is at the edges.
var (
	ErrUnknownService     = errors.New("unknown service")
	ErrAlreadyRemediating = errors.New("remediation already in progress")
	ErrCooldown           = errors.New("remediation cooling down")
)
