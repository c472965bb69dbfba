// Package config loads taskq settings.
//
// A Config starts from the standalone defaults. Named presets and JSON or
// TOML files are layered on top, then environment variables override
// single fields. Environment names are either the dotted field path,
// "taskq.run.wait_timeout", or its upper-case form, "TASKQ_RUN_WAIT_TIMEOUT".
//
// Durations accept Go duration strings ("1m30s") or plain seconds ("90",
// "0.2"). The literal "none" clears an optional duration.
package config
