package contexthelpers

type contextKey string

const CspNonceContextKey = contextKey("cspNonce")
const TraceIDContextKey = contextKey("traceID")
const CurrentPathContextKey = contextKey("currentPath")
