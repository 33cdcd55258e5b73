// Package store provides SQLite-backed durable storage for elements.
//
// The store keeps every versioned sub-object as its own row:
//   - element_states: the deleted marker chain of each element
//   - property_value_lists / property_values: one list row per property
//     version, one wide row per value
//   - element_ref_lists / element_ref_items: one list row per reference
//     slot version, one row per target id
//   - table_modifications: one row per revision, the source of revision
//     numbers
//
// # Revision Chains
//
// Every versioned row carries revision and next_revision. The head of a
// chain has next_revision = ir.MaxRevision. A save relinks exactly one head
// per touched chain and inserts the new head in the same transaction; a
// relink that does not change exactly one row is reported as CORRUPTION.
//
// # Deterministic Query Results
//
// Finds are compiled by querysql and always end in e.id COLLATE BINARY ASC.
// Hydration reads chains in ascending revision order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON: Enforce referential integrity
//   - case_sensitive_like=ON: LIKE matches exactly; case-insensitive
//     matching goes through the registered casefold function
package store
