package wallet

import (
	"context"
	"math/big"
	"strings"
	"testing"

	xerrors "gelato-runner/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known development key; never funded on a public network.
const devKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewDerivesAddress(t *testing.T) {
	s, err := New("user", devKey, big.NewInt(4))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	want := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	if s.Address() != want {
		t.Fatalf("address %s, want %s", s.Address().Hex(), want.Hex())
	}
	opts, err := s.TransactOpts(context.Background())
	if err != nil {
		t.Fatalf("transact opts: %v", err)
	}
	if opts.From != want || opts.Signer == nil {
		t.Fatalf("unexpected opts %+v", opts)
	}
}

func TestNewRejectsBadKeysWithoutLeaking(t *testing.T) {
	_, err := New("provider", "0xnothex", big.NewInt(4))
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected INITIALIZATION_FAILURE, got %v", err)
	}
	if strings.Contains(err.Error(), "nothex") {
		t.Fatal("error must not echo the key")
	}
	if _, err := New("provider", "", big.NewInt(4)); err == nil {
		t.Fatal("expected empty key to fail")
	}
	if _, err := New("provider", devKey, nil); err == nil {
		t.Fatal("expected missing chain id to fail")
	}
}
