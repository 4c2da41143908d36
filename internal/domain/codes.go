package domain

// 对外稳定的 error_code（日志与 CLI 输出使用）。
const (
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeProfileInvalid  = "profile_invalid"
	ErrCodeProfileNotFound = "profile_not_found"
	ErrCodePageLoadFailed  = "page_load_failed"
	ErrCodeExportFailed    = "export_failed"
)
