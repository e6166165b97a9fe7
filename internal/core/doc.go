// Package core provides the schema-driven data grid engine.
//
// This package contains all grid logic independent of any UI or transport
// layer: it discovers collection schemas at runtime, generates columns,
// reconciles server- and client-side filtering, and manages edit sessions
// and import/export. It can be driven by web handlers, CLI tools, or tests
// without modification.
//
// # Architecture
//
// The package is organized around several cooperating components:
//
//   - Resolver: fetches schema and rows with a generation counter and an
//     idempotence signature so overlapping fetches never apply stale data.
//   - GenerateColumns: turns a schema plus a row sample into the renderable
//     column list, including columns discovered inside the data_in
//     extension blob with per-locale fallback.
//   - FilterEngine: coordinates server-side column filters, boolean text
//     search evaluated client-side, quick status/city filters, and date
//     ranges, recomputing pagination from the filtered length.
//   - SortCoordinator / PaginationController: multi-column ordered sort
//     with pruning, and page state with per-collection size defaults.
//   - EditSession: per-cell pending edits keyed by row, committed row by
//     row so one failed row never rolls back its neighbors.
//   - Export / ParseImport / ImportJobManager: four file formats in and
//     out, with asynchronous import jobs broadcasting progress to
//     subscribers.
//
// # Fetch Lifecycle
//
// Every fetch gets a monotonically increasing generation; the response is
// applied only when its generation still equals the latest issued one.
// Superseded responses are dropped silently so rapid navigation never
// surfaces abort errors.
//
// # Error Handling
//
// Technical errors are classified by [ErrorKind] and mapped to
// user-facing messages with stable codes using [MapError]. Superseded
// fetches and context cancellation are recognized by [IsSuperseded] and
// treated as non-errors.
package core
