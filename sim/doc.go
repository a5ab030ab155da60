// Package sim provides the day-stepped agent-based simulation of a retail
// store: two customer populations buying from a product population that
// restocks itself.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - model.go: population resume and top-up, the daily step, checkpoint and export
//   - sources.go: where agents learn their behaviour (segment bundles, price store)
//   - catalog.go: category lookup from a customer's preference to concrete products
//
// # Architecture
//
// The sim package owns the model and its configuration; the pieces it drives
// live in sub-packages:
//   - sim/agent/: Cust1, Cust2 and Product agents and their records
//   - sim/analyzer/: CSV frames, column classification, segment clustering
//   - sim/dist/: KDE, normal and categorical samplers
//   - sim/pricing/: per-category price and quantity distributions
//   - sim/taxonomy/: category tree and fuzzy name mapping
//   - sim/registry/: globally unique, persistent agent identifiers
//   - sim/checkpoint/: compressed population snapshots with run history
//   - sim/export/: daily result tables
//   - sim/telemetry/: per-day counters for logs and Prometheus
//   - sim/runs/: background runs with progress and cancellation
//
// # Determinism
//
// Every draw comes from a PartitionedRNG keyed by the master seed, so a run
// is reproducible from its configuration and the checkpoint it resumed.
package sim
