// Package packager prepares the firmware descriptor an update service must
// serve for a release image, using the same digest computation devices use
// to verify it.
package packager
