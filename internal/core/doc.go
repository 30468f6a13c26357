// Package core provides the business logic for splitting the MTR materials table.
//
// This package is the heart of the splitter, containing all domain logic
// independent of any storage driver or CLI. It can be driven by the
// command-line tool, by tests with in-memory fakes, or by any caller that
// supplies a [Store].
//
// # Architecture
//
// The package is organized around four components, leaves first:
//
//   - Reference indexes: [RegulationIndex] and [UnitIndex] map a natural key
//     to the descriptive fields of the regulation (GOST/TU) registry and the
//     unit-of-measure registry.
//   - Schema synchronization: [SchemaSync] ensures both destination tables
//     exist with the column set returned by [NewLayout].
//   - Classification: [Classifier] decides per row whether it is complete
//     (regulation code and parameters both present) and builds a new
//     [EnrichedRow] carrying the resolved reference fields.
//   - Durable writes: [DurableWriter] inserts one row at a time and commits
//     before the next row is processed.
//
// # Run Lifecycle
//
// [Pipeline.Run] drives the components through a fixed sequence of phases:
//
//  1. PhaseInit: load the source table and both reference relations
//  2. PhaseSchemaReady: ensure the filled and empty tables exist
//  3. PhaseProcessing: classify, enrich, write and commit each row in order
//  4. PhaseDone, or PhaseFailed on the first fatal error
//
// There are no retries. A failed write ends the run; rows committed before
// it stay in place.
//
// # Error Handling
//
// Fatal errors are typed ([ConnectionError], [LoadError], [SchemaError],
// [WriteError]) and can be inspected with errors.As. A lookup miss is not an
// error: the enrichment fields stay null and an [Observer] receives a
// [LookupEvent]. [MapError] maps any error to a coded user message:
//
//   - CONN001: Store unreachable
//   - LOAD001-LOAD002: Source or reference relation unreadable
//   - SCH001: Destination table could not be created
//   - WR001-WR002: Row write failed
//   - CFG001: Invalid configuration
package core
