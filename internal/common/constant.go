package common

// SessionTokenMetadataKey is the gRPC metadata key carrying the session
// token in both directions.
const SessionTokenMetadataKey = "session_token"

// SessionCookieName is the HTTP cookie holding the session token.
const SessionCookieName = "clautod_session"

// AdminUsername is the single account bound to the admin privilege level.
const AdminUsername = "admin"

// GRPCServiceName is the full name of the gRPC service. Each route is a
// unary method named after it, e.g. /clautod.v1.Clautod/UserGet.
const GRPCServiceName = "clautod.v1.Clautod"

// GRPCMethod returns the full method path for a route name.
func GRPCMethod(route string) string {
	return "/" + GRPCServiceName + "/" + route
}
