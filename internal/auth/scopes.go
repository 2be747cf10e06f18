package auth

// Known OAuth scopes used by the proof service.
const (
	ScopeProofsWrite = "proofs:write"
	ScopeProofsRead  = "proofs:read"
)
