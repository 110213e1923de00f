// Package pipectx carries the pipeline context (version, replay flag,
// cache policy) and the per-call cache status across transport hops.
//
// The tuple travels as three request headers and one response header:
//
//	x-tpf-version       request   pipeline version executing the call
//	x-tpf-replay        request   whether the call replays recorded traffic
//	x-tpf-cache-policy  request   per-request cache policy
//	x-tpf-cache-status  response  HIT, MISS, BYPASS or STORED
//
// Inside a process the tuple lives in a context.Context slot installed by
// Bind. The slot also holds a mutable cell written by transport filters
// (the recorded cache status and, on a hit, the cached value) and read by
// the cache policy enforcer between steps. Bind returns a release
// function; callers must run it on every exit path so no state leaks into
// the next request on a reused goroutine or connection.
//
// Two ready-made adapters cover the HTTP dev host: Middleware (server
// side, extract + bind + status response header) and NewTransport (client
// side, inject + record returned status). Other transports implement the
// same contract through HeaderCarrier.
package pipectx
