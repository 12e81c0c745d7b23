package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried through the call chain in the context logger.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the generation job ID
	FieldJobID = "job_id"

	// FieldChunkIndex is the chunk index within a job
	FieldChunkIndex = "chunk_index"

	// FieldUnitID is the execution unit running a chunk
	FieldUnitID = "unit_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSubscriberID is the progress subscriber ID
	FieldSubscriberID = "subscriber_id"
)

// Metric fields, attached per entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
