// Package audit records configuration commands issued to boards.
//
// Each command accepted by the HTTP API or the MQTT bridge is written to the
// audit_logs table with its source, caller, target board and outcome. Entries
// are listed newest first through Repository.List.
package audit
