// Package state persists the report of the last update run.
//
// The FileRepository stores and loads the report as YAML on disk so the
// daemon can show the last outcome after a restart.
package state
