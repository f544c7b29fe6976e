// Package integrity computes content digests of staged firmware images and
// compares them to the digest announced by the update service.
package integrity
