package errs

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrDuplicateKey   = NewCodeError(DuplicateKeyError, "DuplicateKeyError")

	ErrNotAMember       = NewCodeError(NotAMemberError, "NotAMember")
	ErrNotAnAdmin       = NewCodeError(NotAnAdminError, "NotAnAdmin")
	ErrAlreadyResolved  = NewCodeError(AlreadyResolvedError, "AlreadyResolved")
	ErrDuplicateVote    = NewCodeError(DuplicateVoteError, "DuplicateVote")
	ErrUnknownApproval  = NewCodeError(UnknownApprovalError, "UnknownApprovalRequest")
	ErrInvalidThreshold = NewCodeError(InvalidThresholdError, "InvalidThresholdConfig")
	ErrExecutionFailed  = NewCodeError(ExecutionFailedError, "ExecutionFailed")
)
