// Package provider defines the generic provider interaction shapes used to
// describe backend integrations as swappable, resilience-wrappable units.
//
// The package defines three interaction patterns used elsewhere in this
// service:
//   - RequestResponse[I, O]: one input → one output. store.QuotaStore
//     implements it over subscription lookups; quota.Service wraps it with
//     WithResilience for retry on transient DB errors.
//   - Sink[I]: one input → ack, no meaningful response. writequeue.Queue
//     implements it over Enqueue; gateway.Gateway wraps it with
//     WithSinkResilience (a bulkhead) and calls Send for every durable write.
//   - Duplex[I, O]: bidirectional. upstream.NewDuplex implements it over the
//     websocket dial; gateway.Gateway wraps it with WithDuplexResilience
//     (a shared circuit breaker) and passes the wrapped value to every
//     session's upstream.Adapter.
//
// WithResilience / WithSinkResilience / WithDuplexResilience wrap a provider
// with circuit breaker, retry, rate limiter, and bulkhead policies from the
// resilience package. Empty config is a no-op passthrough.
//
// Iterator[T] and DuplexStream[I, O] describe the pull-based and
// bidirectional ends of a Duplex connection once it's open. upstream's
// frameIterator adapts its DuplexStream's Recv to Iterator so the adapter's
// read loop pulls inbound frames the same way any other pull-based source
// would.
package provider
