//go:build dev
// +build dev

package build

// Deployment specifies a development build. Unit tests run against the
// stdout logger so failures come with the subsystem output attached.
const Deployment = Development
