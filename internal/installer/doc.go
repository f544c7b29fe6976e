// Package installer hands a verified firmware image to the device's
// flashing procedure. Installation is terminal: nothing is rolled back.
package installer
