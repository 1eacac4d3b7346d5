// Package filelock serialises read-modify-write cycles on shared files
// across processes.
package filelock
