// Package testsupport provides an in-memory library index for tests of the
// selection, favorites and fingerprint packages.
package testsupport
