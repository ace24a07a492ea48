/*
Package cache implements the write-back caching layer that sits
between the FUSE frontend and a connector.Connector backend.

Writes land in the cache immediately and are acknowledged to the
kernel without waiting on the network; a background reconciler
(reconciler.go) periodically drains pending changes to the backend in
dependency order (parent directories before children on create,
children before parents on delete), retrying failures in place rather
than blocking the caller.

Two concrete variants implement this: MemoryCache holds cached content
and metadata in process memory, bounded by entry count and byte size
with LRU eviction; FilesystemCache spills cached content to a local
directory instead, trading memory pressure for disk I/O. NoCache
(passthrough.go) skips caching entirely, routing every call straight
to the inner connector — useful when the backend already has its own
caching, or for correctness testing without cache effects in the way.

All three satisfy connector.Connector themselves, so callers compose
them the same way they would any other decorator (circuit.Connector,
status.Overlay): wrap the backend connector once, then hand the
wrapped value to whatever needs storage.
*/
package cache
