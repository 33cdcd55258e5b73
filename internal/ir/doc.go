// Package ir provides the foundational types of the element store.
//
// This package contains the typed value sum type, the schema model
// (ElementType, PropertyType, ReferenceType), modification records and the
// structured error taxonomy. All other internal packages import ir; ir
// imports nothing internal.
//
// Key design constraints:
//   - Value is sealed; only the kinds declared in kind.go implement it
//   - Dates carry millisecond precision and are always UTC
//   - Strings are NFC-normalized before they are stored or compared
package ir
