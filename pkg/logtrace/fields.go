package logtrace

// Fields is a type alias for structured log fields
type Fields map[string]interface{}

const (
	FieldCorrelationID = "correlation_id"
	FieldMethod        = "method"
	FieldModule        = "module"
	FieldError         = "error"
	FieldStatus        = "status"
	FieldKey           = "key"
	FieldPeer          = "peer"
	FieldRoot          = "root"
	FieldLimit         = "limit"

	ValueModuleMerkle    = "merkle"
	ValueModuleKBucket   = "kbucket"
	ValueModuleSearch    = "search"
	ValueModuleStore     = "store"
	ValueModuleTransport = "transport"
	ValueModuleGRPC      = "grpc"
)
