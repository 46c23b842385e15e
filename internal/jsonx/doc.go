// Package jsonx recovers JSON objects from free-form model output.
//
// This package provides:
//   - Code-fence stripping and balanced-object extraction
//   - Raw-newline repair inside string literals
//   - Invalid-escape repair inside string literals
//   - A parse chain that applies the repairs in a fixed order
//
// Extraction and both repairs share one string-state scanner so that they
// agree on where string literals begin and end.
package jsonx
