// Package flowstore persists named, versioned flow definitions: a graph
// plus its canvas layout. The store is in-process and optimistic; Update
// requires the caller's version to match the stored one, so two editors
// racing on the same flow cannot silently clobber each other. A builtin
// sample library is preloaded at startup and protected from deletion.
package flowstore
