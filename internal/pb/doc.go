// Package pb implements the schema-free tag/varint encoding used by the
// "modern" service commands.
//
// A Message is a map from field number to value. Encoding infers the wire
// type from the Go type; decoding has no schema, so every length-delimited
// field is kept as raw bytes and additionally exposed as a lazily decoded
// nested Message. Callers pick the interpretation they expect per field.
package pb
