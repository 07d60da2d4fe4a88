// Package internaldefs holds the metric names, help strings and bucket
// layout shared by the exporters, so Prometheus and OTel publish identical
// series for the same engine counters.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
