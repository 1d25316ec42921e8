package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing Fields (Context level)
// Propagated through one carousel resolution pass
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldCarouselID identifies one classify/resolve/validate pass
	FieldCarouselID = "carousel_id"

	// FieldSlide is the 1-based slide index
	FieldSlide = "slide"

	// FieldHint is the content type hint being resolved
	FieldHint = "hint"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the asset source name
	FieldSource = "source"

	// FieldCacheKey is a cache store key
	FieldCacheKey = "cache_key"
)

// ============================================
// Metric Fields (Entry level)
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the 1-based fetch attempt number
	FieldAttempt = "attempt"
)
