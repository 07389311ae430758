// Package journal keeps an append-only audit trail of the transactions the
// commands send. The journal is never consulted to decide whether to act;
// commands always re-read chain state.
package journal

import (
	"context"

	xerrors "gelato-runner/internal/errors"

	"github.com/google/uuid"
)

// Status 表示一笔交易在流水中的状态。
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Record 描述一次命令执行产生的交易流水。
type Record struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id,omitempty"`
	Command     string `json:"command"`
	Network     string `json:"network"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Method      string `json:"method,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	Status      Status `json:"status"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Detail      string `json:"detail,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Outcome 是对已有流水记录的状态更新。
type Outcome struct {
	Status      Status
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	ErrorCode   string
	LastError   string
}

// Store 抽象了交易流水的持久化接口。
type Store interface {
	Append(ctx context.Context, record *Record) error
	Resolve(ctx context.Context, id string, outcome Outcome) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	Close() error
}

const (
	CodeRecordNotFound xerrors.Code = "JOURNAL_RECORD_NOT_FOUND"
	CodeRecordConflict xerrors.Code = "JOURNAL_RECORD_CONFLICT"
)

var (
	// ErrRecordNotFound 表示指定的流水记录不存在。
	ErrRecordNotFound = xerrors.New(CodeRecordNotFound, "journal record not found")
	// ErrRecordConflict 表示流水 ID 重复。
	ErrRecordConflict = xerrors.New(CodeRecordConflict, "journal record already exists", xerrors.WithSeverity(xerrors.SeverityWarning))
)

func init() {
	xerrors.Register(CodeRecordNotFound, xerrors.Attributes{
		Message:  "journal record not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRecordConflict, xerrors.Attributes{
		Message:  "journal record already exists",
		Severity: xerrors.SeverityWarning,
	})
}

// NewID 生成流水记录 ID。
func NewID() string {
	return uuid.NewString()
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusSubmitted, StatusConfirmed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

func validate(record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水记录不能为空")
	}
	if record.ID == "" {
		record.ID = NewID()
	}
	if record.Command == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水记录缺少命令名")
	}
	if record.Status == "" {
		record.Status = StatusSubmitted
	}
	if !IsValidStatus(record.Status) {
		return xerrors.New(xerrors.CodeInvalidArgument, "未知流水状态 "+string(record.Status))
	}
	return nil
}
