// Package telerror provides error inspection capabilities for Telraam API errors.
// It centralizes the logic for deciding whether a failure is an authentication
// problem, a missing resource, a rate limit, or a transient network error, so
// that retry decisions and exit codes are made in one place.
package telerror
