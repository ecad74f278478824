/*
Package server hosts the HTTP router and its middleware chain.

The chain applied to every request is, in order:
 1. RequestIDMiddleware assigns X-Request-ID.
 2. LoggingMiddleware emits one structured record per request; handlers add
    fields with AddLogField and AddError.
 3. MetricsMiddleware reports per-route counts and latency.
 4. chi's Recoverer turns handler panics into 500 responses.
 5. otelhttp starts a server span.

Routes registered through Server.Protected additionally run
AuthMiddleware, which resolves the API key to an actor name (see GetActor),
and TimeoutMiddleware.
*/
package server
