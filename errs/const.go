package errs

const (
	ErrCode_OK              = 0
	ErrCode_Unknown         = 1
	ErrCode_InvalidArgument = 2
	ErrCode_Interrupted     = 3
	ErrCode_AlreadyStarted  = 4
	ErrCode_Stopped         = 5
	ErrCode_CallbackPanic   = 6
	ErrCode_SpawnFailed     = 7
	ErrCode_Config          = 8
)

var (
	Unknown         = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	InvalidArgument = CreateCodeError(ErrCode_InvalidArgument, "INVALID_ARGUMENT")
	Interrupted     = CreateCodeError(ErrCode_Interrupted, "INTERRUPTED")        // 等待被取消
	AlreadyStarted  = CreateCodeError(ErrCode_AlreadyStarted, "ALREADY_STARTED") // 重复启动
	Stopped         = CreateCodeError(ErrCode_Stopped, "STOPPED")
	CallbackPanic   = CreateCodeError(ErrCode_CallbackPanic, "CALLBACK_PANIC")
	SpawnFailed     = CreateCodeError(ErrCode_SpawnFailed, "SPAWN_FAILED")
	Config          = CreateCodeError(ErrCode_Config, "CONFIG")
)
