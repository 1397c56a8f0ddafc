// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// ServiceInfo exposes descriptive build- and runtime info for external tools
// and the --version CLI flag.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}
