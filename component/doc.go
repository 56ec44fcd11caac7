// Package component defines the core interfaces for lifecycle-managed
// infrastructure in the streaming kit.
//
// Components represent services that require startup, shutdown, and
// health monitoring, such as a broadcast channel or the metrics
// pipeline. They are registered with a Registry for deterministic
// lifecycle ordering.
package component
