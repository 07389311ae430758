package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"gelato-runner/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// Init code deploying a runtime that always returns uint256(42).
const answerContractBin = "0x600a600c600039600a6000f3602a60005260206000f3"

func newSimulatedClient(t *testing.T) (*Client, *simulated.Backend, *bind.TransactOpts) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	funds := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	sim := simulated.NewBackend(coretypes.GenesisAlloc{auth.From: {Balance: funds}})
	t.Cleanup(func() { _ = sim.Close() })

	client := NewBackendClient("simulated", sim.Client(),
		WithCommit(func() { sim.Commit() }),
		WithPollInterval(10*time.Millisecond),
		WithNotes("simulated backend"),
	)
	return client, sim, auth
}

func TestClientTransactAndWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, _, auth := newSimulatedClient(t)

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID.Uint64() != 1337 {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	opts := *auth
	opts.Value = big.NewInt(1e18)
	opts.GasLimit = 21_000

	tx, err := client.Transact(ctx, &opts, recipient, nil)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	receipt, err := client.WaitMined(ctx, tx)
	if err != nil {
		t.Fatalf("wait mined: %v", err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		t.Fatalf("unexpected receipt status %d", receipt.Status)
	}

	balance, err := client.BalanceAt(ctx, recipient)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1e18)) != 0 {
		t.Fatalf("unexpected recipient balance %s", balance)
	}
}

func TestClientCallReadsContract(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, sim, auth := newSimulatedClient(t)
	backend := sim.Client()

	nonce, err := backend.PendingNonceAt(ctx, auth.From)
	if err != nil {
		t.Fatalf("pending nonce: %v", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	deploy := coretypes.NewContractCreation(nonce, new(big.Int), 200_000, gasPrice, common.FromHex(answerContractBin))
	signed, err := auth.Signer(auth.From, deploy)
	if err != nil {
		t.Fatalf("sign deploy: %v", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		t.Fatalf("send deploy: %v", err)
	}
	sim.Commit()
	contract := crypto.CreateAddress(auth.From, nonce)

	code, err := client.CodeAt(ctx, contract)
	if err != nil || len(code) == 0 {
		t.Fatalf("expected deployed code, got %x (%v)", code, err)
	}

	out, err := client.Call(ctx, auth.From, contract, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if new(big.Int).SetBytes(out).Uint64() != 42 {
		t.Fatalf("unexpected call output %x", out)
	}
}

func TestClientTransactRequiresSigner(t *testing.T) {
	client, _, auth := newSimulatedClient(t)
	opts := *auth
	opts.Signer = nil
	if _, err := client.Transact(context.Background(), &opts, common.Address{}, nil); err == nil {
		t.Fatal("expected missing signer error")
	}
}

func TestWaitMinedHonoursContext(t *testing.T) {
	client, _, _ := newSimulatedClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orphan := coretypes.NewTransaction(99, common.Address{}, new(big.Int), 21_000, big.NewInt(1), nil)
	if _, err := client.WaitMined(ctx, orphan); err == nil {
		t.Fatal("expected cancelled wait to fail")
	}
}

var _ web3.Client = (*Client)(nil)
