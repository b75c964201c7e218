// Package utils holds the channel engine's CHANNELD_* environment
// variable surface: lookup under the shared prefix plus the validated
// override helpers the configuration loader applies on top of its YAML
// values.
package utils

import (
	"os"
	"strconv"
)

// envPrefix namespaces every engine environment variable, so an embedding
// host's unrelated variables can never collide with engine tuning.
const envPrefix = "CHANNELD_"

// LookupEnv reads the CHANNELD_-prefixed variable name, reporting whether
// it is set to a non-empty value.
func LookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Env returns the CHANNELD_-prefixed variable's value, or fallback when it
// is unset or empty.
func Env(name, fallback string) string {
	if v, ok := LookupEnv(name); ok {
		return v
	}
	return fallback
}

// SnapshotIntervalOverride applies CHANNELD_SNAPSHOT_INTERVAL on top of a
// configured snapshot interval. The snapshot policy divides offsets by the
// interval, so zero is not a valid value: an unset variable, a parse
// failure, and an explicit 0 all leave the configured value in place.
func SnapshotIntervalOverride(configured uint64) uint64 {
	v, ok := LookupEnv("SNAPSHOT_INTERVAL")
	if !ok {
		return configured
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return configured
	}
	return n
}

// MaxSnapshotsOverride applies CHANNELD_MAX_SNAPSHOTS on top of a
// configured retention bound. Zero means "keep every snapshot"; negative
// values and parse failures leave the configured value in place.
func MaxSnapshotsOverride(configured int) int {
	v, ok := LookupEnv("MAX_SNAPSHOTS")
	if !ok {
		return configured
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return configured
	}
	return n
}

// ValidationCacheOverride applies CHANNELD_VALIDATION_CACHE on top of a
// configured validation-cache size. Zero disables caching, so it is a
// legal override; negative values and parse failures are not.
func ValidationCacheOverride(configured int) int {
	v, ok := LookupEnv("VALIDATION_CACHE")
	if !ok {
		return configured
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return configured
	}
	return n
}
