// Package engine is the entry point of the element store.
//
// The engine binds find requests against the type registry, drives one
// Backend (relational or document) and converts between stored records and
// the entity maps callers exchange.
//
// ARCHITECTURE:
//
// Find:
// 1. queryir.Bind resolves the type, attributes and literals. Schema and
// validation errors are returned here, before any backend call.
// 2. The backend compiles the plan (querysql or querydoc) and executes it.
// 3. When the backend reports Paginated=false the engine pages the ordered
// result itself.
//
// Save:
// 1. model.Decode checks the entity map against its type.
// 2. model.PlanSave diffs it with the stored head so only changed
// attributes and reference slots get a new version.
// 3. Backend.Apply allocates one revision, checks the expected version and
// relinks the touched chains.
//
// CRITICAL PATTERNS:
//
// Concurrency Guard:
// Updates carry the caller's version. A mismatch is a CONFLICT and is
// returned unmodified; the engine never retries.
//
// Explicit reference views:
// Every Find carries LatestRefsOnly. The engine never infers it.
//
// Every operation is traced (otel) and counted (prometheus) by name,
// backend and outcome.
package engine
