// Package harness runs YAML scenarios against every backend and checks that
// they behave the same.
//
// # Scenario Format
//
//	name: customer_lookup
//	description: "What this scenario validates"
//	schema: ../schemas/customer.yaml
//	steps:
//	  - op: save
//	    type: Address
//	    as: a1
//	    data: {city: Big City}
//	  - op: save
//	    type: Customer
//	    as: c1
//	    data: {customerNumber: 123, addresses: [$a1]}
//	  - op: find
//	    type: Customer
//	    find:
//	      where: {customerNumber: "123"}
//	      children: {addresses: {city: "%ity%"}}
//	      latest_only: true
//	      latest_refs_only: true
//	    expect:
//	      ids: [c1]
//	assertions:
//	  - type: element
//	    ref: c1
//	    expect: {customerNumber: 123}
//
// Element ids are generated by the engine, so scenarios name elements by
// alias. "$alias" inside data, filters and as_of is replaced by the id (or,
// for as_of, the revision of the last write) of that alias. Filters use the
// textual SearchOp syntax of queryir.ParseOp.
//
// # Operations
//
//   - save: creates an element of type and binds it to as
//   - update: saves data onto ref, at the last version the scenario saw
//     unless version is given
//   - delete: soft-deletes ref
//   - check_version: checks ref against version
//   - find: runs find and compares the returned aliases with expect.ids
//
// A step with expect.error must fail with that error code; any other step
// must succeed.
//
// # Assertion Types
//
//   - element: the head map of ref contains every key of expect
//   - history: ref has exactly count modifications
//
// # Determinism
//
// Every run uses testutil.DeterministicClock and a sequence id generator, so
// a scenario produces the same trace on every backend and every run. The
// trace names elements by alias and never records revision numbers, which
// differ between backends.
package harness
