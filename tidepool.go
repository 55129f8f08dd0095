// Package tidepool provides a sandboxed HTML content extraction host.
// It runs a compiled WebAssembly extractor module under per-call resource
// bounds (linear memory pages, fuel, wall clock), keeps warm instances in
// a fixed-size pool guarded by a circuit breaker, and degrades to a native
// extractor so every call returns a document.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., wazero/, goquery/, pool/).
package tidepool
