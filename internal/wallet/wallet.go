// Package wallet turns the demo's raw private keys into transaction signers.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	xerrors "gelato-runner/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for one externally owned account.
type Signer struct {
	label   string
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// New parses a hex private key, with or without 0x prefix.
func New(label, hexKey string, chainID *big.Int) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("%s 私钥为空", label))
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the key itself must not end up in logs
		return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("%s 私钥格式无效", label))
	}
	return FromKey(label, key, chainID)
}

// FromKey wraps an already parsed key.
func FromKey(label string, key *ecdsa.PrivateKey, chainID *big.Int) (*Signer, error) {
	if key == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("%s 私钥为空", label))
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("%s 缺少链 ID", label))
	}
	return &Signer{
		label:   label,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

func (s *Signer) Label() string           { return s.label }
func (s *Signer) Address() common.Address { return s.address }

// TransactOpts returns fresh options bound to ctx. Callers fill in value and
// gas per transaction.
func (s *Signer) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s == nil || s.key == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "签名器未初始化")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("创建 %s 签名器失败", s.label))
	}
	opts.Context = ctx
	return opts, nil
}

func (s *Signer) String() string {
	return fmt.Sprintf("%s(%s)", s.label, s.address.Hex())
}
