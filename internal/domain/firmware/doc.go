// Package firmware contains the core domain types of an OTA update attempt.
//
// It defines the device identity, the firmware descriptor served by the update
// service, the update decision, the staged artifact with its verification
// result, and the closed error taxonomy shared by every pipeline stage.
package firmware
