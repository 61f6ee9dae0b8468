// Package types defines the shared contracts of the stratacache hierarchy:
// the tier and item model, the RemoteStore and MetricsSink collaborator
// interfaces, and the Predictor abstraction consumed by placement and
// eviction.
package types
