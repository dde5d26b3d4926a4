// Package services defines shared utilities consumed by the workflow step
// runner and the external engine adapters.
//
// Key responsibilities:
//   - Context helpers that stamp workflow step names and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the CLI tell
//     failures, cancellations and operator mistakes apart.
//
// Use these helpers when wiring new step logic so error handling and
// observability stay uniform across the pipeline.
package services
