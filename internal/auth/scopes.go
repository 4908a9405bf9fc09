package auth

// ScopeAdminRead grants access to cross-user dashboard feeds.
const ScopeAdminRead = "admin:read"
