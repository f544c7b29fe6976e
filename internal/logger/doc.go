// Package logger wraps zap for the OTA client:
//   - a global sugared logger writing to the console and, optionally, to a
//     rotated log file on the device,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and convenience functions (Infof, ErrorKV, etc.).
//
// Every stage of the update pipeline takes a context and logs through it,
// so the run, stage and device fields travel with each message.
package logger
