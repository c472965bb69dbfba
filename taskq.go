package taskq

// SkipEntrypoint is the reserved entrypoint name for tasks that are leased
// and marked successful without executing anything. It is useful for
// placeholder tasks that only act as level barriers.
const SkipEntrypoint = "taskq.skip"

// SchemaVersion is the storage schema version this module reads and writes.
// Stores created with a different version are rejected.
const SchemaVersion = 1
