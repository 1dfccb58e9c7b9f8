package auth

// Scopes granted to signed-in users.
const (
	ScopeMeasurementsWrite = "measurements:write"
	ScopeMeasurementsRead  = "measurements:read"
)

// DefaultScopes is the scope set issued at sign-in.
var DefaultScopes = []string{ScopeMeasurementsRead, ScopeMeasurementsWrite}
