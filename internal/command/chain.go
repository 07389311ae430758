package command

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/journal"
	"gelato-runner/internal/notify"
	"gelato-runner/internal/wallet"
	"gelato-runner/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// call runs a read-only contract call and decodes its outputs.
func call(ctx context.Context, env *environment.Env, contract string, to common.Address, method string, args ...any) ([]any, error) {
	data, err := env.ABI.EncodeCall(contract, method, args...)
	if err != nil {
		return nil, err
	}
	var from common.Address
	if env.User != nil {
		from = env.User.Address()
	}
	raw, err := env.Client.Call(ctx, from, to, data)
	if err != nil {
		return nil, xerrors.Wrap(CodeChainReadFailure, err, fmt.Sprintf("读取 %s.%s 失败", contract, method),
			xerrors.WithMetadata("to", to.Hex()))
	}
	out, err := env.ABI.DecodeOutput(contract, method, raw)
	if err != nil {
		return nil, err
	}
	if env.Verbose {
		parts := make([]string, len(out))
		for i, v := range out {
			parts[i] = abiutil.FormatValue(v)
		}
		env.Out.KV(contract+"."+method, strings.Join(parts, ", "))
	}
	return out, nil
}

// read returns the single output of a view function as T.
func read[T any](ctx context.Context, env *environment.Env, contract string, to common.Address, method string, args ...any) (T, error) {
	var zero T
	out, err := call(ctx, env, contract, to, method, args...)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, xerrors.New(CodeChainReadFailure, fmt.Sprintf("%s.%s 没有返回值", contract, method))
	}
	if v, ok := out[0].(T); ok {
		return v, nil
	}
	return abiutil.Convert[T](out[0])
}

// deployment resolves a recorded contract address.
func deployment(env *environment.Env, contract string) (common.Address, error) {
	return env.Book.Deployment(contract)
}

// txRequest is one transaction a command wants mined.
type txRequest struct {
	command  string
	signer   *wallet.Signer
	contract string
	to       common.Address
	method   string
	args     []any
	value    *big.Int
	gasLimit uint64
	// rejectHint replaces the SUBMISSION_REJECTED default hint.
	rejectHint string
}

// send encodes, signs, broadcasts and awaits req. The journal gets a
// submitted record first, resolved to confirmed or failed afterwards; the
// outcome is audited and fanned out to the notifiers. Nothing is retried.
func send(ctx context.Context, env *environment.Env, req txRequest) (*types.Receipt, error) {
	data, err := env.ABI.EncodeCall(req.contract, req.method, req.args...)
	if err != nil {
		return nil, err
	}
	record := &journal.Record{
		RunID:   env.RunID,
		Command: req.command,
		Network: env.Network,
		From:    req.signer.Address().Hex(),
		To:      req.to.Hex(),
		Method:  req.contract + "." + req.method,
		Status:  journal.StatusSubmitted,
	}
	if req.value != nil && req.value.Sign() > 0 {
		record.Detail = "value=" + abiutil.FormatUnits(req.value, 18) + " ETH"
	}
	opts, err := req.signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	opts.GasLimit = req.gasLimit
	if opts.GasLimit == 0 {
		opts.GasLimit = env.Gas.Limit
	}
	if env.Gas.Price != nil && env.Gas.Price.Sign() > 0 {
		opts.GasPrice = new(big.Int).Set(env.Gas.Price)
	}
	if req.value != nil {
		opts.Value = new(big.Int).Set(req.value)
	}

	// journaled only once the transaction can actually be signed
	journaled := appendRecord(ctx, env, record)
	env.Out.Info("sending %s.%s from %s", req.contract, req.method, req.signer)
	tx, err := env.Client.Transact(ctx, opts, req.to, data)
	if err != nil {
		var hint []xerrors.Option
		if req.rejectHint != "" {
			hint = append(hint, xerrors.WithHint(req.rejectHint))
		}
		werr := xerrors.Wrap(CodeSubmissionRejected, err, fmt.Sprintf("%s.%s 提交失败", req.contract, req.method), hint...)
		finish(ctx, env, record, journaled, journal.Outcome{Status: journal.StatusFailed}, werr)
		return nil, werr
	}
	record.TxHash = tx.Hash().Hex()
	env.Out.KV("tx", record.TxHash)

	waitCtx := ctx
	if env.Gas.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, env.Gas.ConfirmTimeout)
		defer cancel()
	}
	receipt, err := env.Client.WaitMined(waitCtx, tx)
	if err != nil {
		werr := xerrors.Wrap(CodeConfirmationFailed, err, fmt.Sprintf("等待交易 %s 确认失败", record.TxHash),
			xerrors.WithMetadata("tx_hash", record.TxHash))
		finish(ctx, env, record, journaled, journal.Outcome{Status: journal.StatusFailed, TxHash: record.TxHash}, werr)
		return nil, werr
	}
	outcome := journal.Outcome{
		Status:      journal.StatusConfirmed,
		TxHash:      record.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		werr := xerrors.New(CodeConfirmationFailed, fmt.Sprintf("交易 %s 执行失败 (status 0)", record.TxHash),
			xerrors.WithMetadata("tx_hash", record.TxHash))
		outcome.Status = journal.StatusFailed
		finish(ctx, env, record, journaled, outcome, werr)
		return nil, werr
	}
	finish(ctx, env, record, journaled, outcome, nil)
	env.Out.OK("%s confirmed in block %d (gas used %d)", req.method, outcome.BlockNumber, outcome.GasUsed)
	return receipt, nil
}

// skip reports an already satisfied postcondition and journals it.
func skip(ctx context.Context, env *environment.Env, name, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	env.Out.Skip("%s", msg)
	record := &journal.Record{
		RunID:   env.RunID,
		Command: name,
		Network: env.Network,
		Status:  journal.StatusSkipped,
		Detail:  msg,
	}
	appendRecord(ctx, env, record)
	notifyOutcome(ctx, env, record, nil)
	return nil
}

// appendRecord writes to the journal. A journal failure never blocks a
// transaction; it is logged and the record is left unjournaled.
func appendRecord(ctx context.Context, env *environment.Env, record *journal.Record) bool {
	if env.Journal == nil {
		return false
	}
	if err := env.Journal.Append(ctx, record); err != nil {
		env.Logger().Warn("写入交易流水失败", slog.String("command", record.Command), slog.Any("error", err))
		return false
	}
	return true
}

func finish(ctx context.Context, env *environment.Env, record *journal.Record, journaled bool, outcome journal.Outcome, failure error) {
	if failure != nil {
		outcome.ErrorCode = string(xerrors.CodeOf(failure))
		outcome.LastError = failure.Error()
		env.Out.Fail("%s", failure.Error())
	}
	record.Status = outcome.Status
	record.BlockNumber = outcome.BlockNumber
	record.GasUsed = outcome.GasUsed
	record.ErrorCode = outcome.ErrorCode
	record.LastError = outcome.LastError
	if journaled {
		// the record may outlive ctx cancellation
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := env.Journal.Resolve(rctx, record.ID, outcome); err != nil {
			env.Logger().Warn("更新交易流水失败", slog.String("id", record.ID), slog.Any("error", err))
		}
	}

	level := slog.LevelInfo
	if failure != nil {
		level = slog.LevelError
	}
	logger.Audit().Log(ctx, level, "transaction",
		slog.String("run_id", record.RunID),
		slog.String("command", record.Command),
		slog.String("network", record.Network),
		slog.String("from", record.From),
		slog.String("to", record.To),
		slog.String("method", record.Method),
		slog.String("tx_hash", record.TxHash),
		slog.String("status", string(record.Status)),
		slog.Uint64("block", record.BlockNumber),
		slog.String("error_code", record.ErrorCode),
	)
	notifyOutcome(ctx, env, record, failure)
}

func notifyOutcome(ctx context.Context, env *environment.Env, record *journal.Record, failure error) {
	if env.Notifier == nil {
		return
	}
	event := notify.Event{
		RecordID: record.ID,
		RunID:    record.RunID,
		Command:  record.Command,
		Network:  record.Network,
		Status:   string(record.Status),
		TxHash:   record.TxHash,
		Message:  record.Detail,
	}
	if failure != nil {
		event.Code = string(xerrors.CodeOf(failure))
		event.Message = failure.Error()
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := env.Notifier.Notify(nctx, event); err != nil {
		env.Logger().Warn("发送交易通知失败", slog.String("command", record.Command), slog.Any("error", err))
	}
}
