package command

import (
	xerrors "gelato-runner/internal/errors"
)

const (
	// CodePreconditionNotMet 表示发送交易前的链上检查未通过。
	CodePreconditionNotMet xerrors.Code = "PRECONDITION_NOT_MET"
	// CodeSubmissionRejected 表示节点或合约拒绝了交易。
	CodeSubmissionRejected xerrors.Code = "SUBMISSION_REJECTED"
	// CodeConfirmationFailed 表示交易已广播但回执失败或等待中断。
	CodeConfirmationFailed xerrors.Code = "CONFIRMATION_FAILED"
	// CodeChainReadFailure 表示只读调用失败。
	CodeChainReadFailure xerrors.Code = "CHAIN_READ_FAILURE"
)

var (
	ErrPreconditionNotMet = xerrors.New(CodePreconditionNotMet, "")
	ErrSubmissionRejected = xerrors.New(CodeSubmissionRejected, "")
	ErrConfirmationFailed = xerrors.New(CodeConfirmationFailed, "")
)

func init() {
	xerrors.Register(CodePreconditionNotMet, xerrors.Attributes{
		Message:  "precondition not met",
		Severity: xerrors.SeverityInfo,
		Hint:     "run the preceding setup command first",
	})
	xerrors.Register(CodeSubmissionRejected, xerrors.Attributes{
		Message:  "transaction submission rejected",
		Severity: xerrors.SeverityWarning,
		Hint:     "check wallet balance, nonce and gas settings",
	})
	xerrors.Register(CodeConfirmationFailed, xerrors.Attributes{
		Message:  "transaction confirmation failed",
		Severity: xerrors.SeverityCritical,
		Hint:     "inspect the transaction on a block explorer before re-running",
	})
	xerrors.Register(CodeChainReadFailure, xerrors.Attributes{
		Message:  "chain read failed",
		Severity: xerrors.SeverityWarning,
		Hint:     "check the rpc_url of the selected network",
	})
}

func precondition(format string, args ...any) error {
	return xerrors.Newf(CodePreconditionNotMet, format, args...)
}

func preconditionHint(hint, format string, args ...any) error {
	err := xerrors.Newf(CodePreconditionNotMet, format, args...)
	xerrors.WithHint(hint)(err)
	return err
}
