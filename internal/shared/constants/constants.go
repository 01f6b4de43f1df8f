package constants

const (
	// Environment constants
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	// Default pagination
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	// HTTP Headers
	HeaderContentType = "Content-Type"
	HeaderXRequestID  = "X-Request-ID"

	// Content Types
	ContentTypeJSON = "application/json"

	// Database table names
	TableUsers             = "users"
	TableAdmins            = "admins"
	TableServices          = "services"
	TableAdminServiceLinks = "admin_service_links"
	TableNodes             = "nodes"
	TableMasterNodeState   = "master_node_state"
	TableNodeUsages        = "node_usages"
	TableNodeUserUsages    = "node_user_usages"
	TableUsageResetLogs    = "usage_reset_logs"

	// Error messages
	ErrMsgInternalServerError = "Internal server error occurred"
	ErrMsgResourceNotFound    = "Resource not found"
	ErrMsgValidationFailed    = "Validation failed"
	ErrMsgConflict            = "Resource already exists"
)
