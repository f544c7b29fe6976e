// Package updater runs the OTA pipeline: it queries the update service,
// decides whether an update applies, then downloads, verifies and installs
// the image, recording every state the run passes through.
package updater
