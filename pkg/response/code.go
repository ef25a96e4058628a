package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 账号模块错误 100xx
	ErrUserExists   = 10001
	ErrUserNotFound = 10002
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 评价模块错误 200xx
	ErrReviewNotFound  = 20001
	ErrConflict        = 20002
	ErrBusy            = 20003
	ErrRemoteTimeout   = 20004
	ErrPersistence     = 20005
	ErrFeedUnavailable = 20006

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
