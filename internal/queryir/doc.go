// Package queryir provides the backend-neutral query representation of the
// element store.
//
// ARCHITECTURE:
//
// A find request is parsed, bound against the type registry, and then
// rendered by one backend compiler:
//
//	[textual filters] → ParseOp/ParseKey → [Find] → Bind → [Plan] → querysql.Compile → SQL
//	                                                              → querydoc.Compile → criteria
//
// Bind is the fail-fast boundary: unknown types, attributes, references and
// sort fields are SCHEMA_ERRORs, malformed literals and invalid paging are
// VALIDATION_ERRORs, and both are returned before any backend is called.
// A Plan only holds resolved property types and literals already converted
// to the attribute's kind.
//
// SEALED INTERFACES:
//
// SearchOp is a sealed interface using the marker method pattern. The four
// variants are Equals, GreaterThan, Interval and In. Backends render them
// with an exhaustive type switch:
//
//	switch op := op.(type) {
//	case Equals:
//	case GreaterThan:
//	case Interval:
//	case In:
//	}
//
// Both renderings must select the same elements for the same stored data.
// The shared pieces of that contract live here: Interval bound inclusivity
// (Bound.LowerInclusive/UpperInclusive), the wildcard grammar
// (MatchWildcard, LikePattern) and case folding (Fold).
//
// NEGATION:
//
// Negation applies to a whole attribute filter. A negated filter matches
// elements that have no visible value satisfying the operator, including
// elements without the attribute.
//
// TEXTUAL SYNTAX:
//
//	key        attribute name, optionally prefixed by "!" (negate) and "~" (ignore case)
//	>v         GreaterThan
//	[a,b]      Interval, Bounded      (a,b)  Open
//	(a,b]      Interval, LeftOpen     [a,b)  RightOpen
//	[,b]       missing lower bound    [a,]   missing upper bound
//	{a,b,c}    In
//	=v         Equals, forcing v to be taken literally
//	v          Equals; "%" in a string literal is a wildcard
package queryir
