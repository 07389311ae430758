package command

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"gelato-runner/internal/addressbook"
	"gelato-runner/internal/environment/envtest"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/journal"
	"gelato-runner/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func eth(s string) *big.Int { return abiutil.MustParseUnits(s, 18) }

func invoke(t *testing.T, f *envtest.Fixture, name string, args ...string) error {
	t.Helper()
	return Invoke(context.Background(), f.Env, name, args)
}

func records(t *testing.T, f *envtest.Fixture) []*journal.Record {
	t.Helper()
	list, err := f.Journal.List(context.Background(), journal.BuildListOptions(journal.WithSortOrder(journal.SortOldestFirst)))
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}
	return list
}

// readyProxy deploys and self-provides the user proxy.
func readyProxy(t *testing.T, f *envtest.Fixture) {
	t.Helper()
	f.Protocol.ProxyDeployed = true
	f.Protocol.SetFunds(envtest.ProxyAddress, eth("1"))
	executor, _ := f.Env.Book.Executor(addressbook.DefaultExecutor)
	f.Protocol.AssignExecutor(envtest.ProxyAddress, executor)
	f.Protocol.ProvideModule(envtest.ProxyAddress, f.Address(t, ProviderModuleGelatoUserProxy))
}

// readyProvider funds and configures the external provider.
func readyProvider(t *testing.T, f *envtest.Fixture) {
	t.Helper()
	provider := f.Env.Provider.Address()
	f.Protocol.SetFunds(provider, eth("2"))
	executor, _ := f.Env.Book.Executor(addressbook.DefaultExecutor)
	f.Protocol.AssignExecutor(provider, executor)
	f.Protocol.ProvideModule(provider, f.Address(t, ProviderModuleGelatoUserProxy))
}

func fundDAI(t *testing.T, f *envtest.Fixture, balance, allowance string) {
	t.Helper()
	dai := f.Address(t, "DAI")
	f.Protocol.SetToken(dai, f.Env.User.Address(), eth(balance))
	f.Protocol.SetAllowance(dai, f.Env.User.Address(), envtest.ProxyAddress, eth(allowance))
}

func TestAddProviderModuleSkipsWhenAlreadyProvided(t *testing.T) {
	f := envtest.New(t)
	f.Protocol.ProvideModule(f.Env.Provider.Address(), f.Address(t, ProviderModuleGelatoUserProxy))

	if err := invoke(t, f, "add-provider-module"); err != nil {
		t.Fatalf("add-provider-module: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("expected no transaction, got %d", n)
	}
	if !strings.Contains(f.Out.String(), "already provided") {
		t.Fatalf("expected already provided message, got:\n%s", f.Out.String())
	}
	recs := records(t, f)
	if len(recs) != 1 || recs[0].Status != journal.StatusSkipped {
		t.Fatalf("expected one skipped record, got %+v", recs)
	}
}

func TestAddProviderModuleIsIdempotent(t *testing.T) {
	f := envtest.New(t)
	for i := 0; i < 2; i++ {
		if err := invoke(t, f, "add-provider-module"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Method != "addProviderModules" {
		t.Fatalf("expected a single addProviderModules, got %+v", sent)
	}
	if sent[0].From != f.Env.Provider.Address() {
		t.Fatalf("sent from %s, want provider", sent[0].From.Hex())
	}
	recs := records(t, f)
	if len(recs) != 2 || recs[0].Status != journal.StatusConfirmed || recs[1].Status != journal.StatusSkipped {
		t.Fatalf("unexpected journal %+v", recs)
	}
	if recs[0].TxHash == "" || recs[0].BlockNumber == 0 {
		t.Fatalf("confirmed record misses receipt data: %+v", recs[0])
	}
}

func TestProvideFundsTopsUpToTarget(t *testing.T) {
	f := envtest.New(t)
	f.Protocol.SetFunds(f.Env.Provider.Address(), eth("0.5"))

	if err := invoke(t, f, "provide-funds"); err != nil {
		t.Fatalf("provide-funds: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Value.Cmp(eth("1.5")) != 0 {
		t.Fatalf("expected a 1.5 ETH top up, got %+v", sent)
	}
	if err := invoke(t, f, "provide-funds", "2"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 1 {
		t.Fatalf("second run must not send, total %d", n)
	}
}

func TestProvideFundsChecksWalletBalance(t *testing.T) {
	f := envtest.New(t)
	f.Chain.SetBalance(f.Env.Provider.Address(), big.NewInt(1))

	err := invoke(t, f, "provide-funds", "2")
	if !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("expected PRECONDITION_NOT_MET, got %v", err)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("expected nothing sent, got %d", n)
	}
}

func TestAssignExecutorRequiresStake(t *testing.T) {
	f := envtest.New(t)
	executor, _ := f.Env.Book.Executor(addressbook.DefaultExecutor)
	f.Protocol.Staked[executor] = false

	if err := invoke(t, f, "assign-executor"); xerrors.CodeOf(err) != CodePreconditionNotMet {
		t.Fatalf("expected PRECONDITION_NOT_MET, got %v", err)
	}
	f.Protocol.Staked[executor] = true
	if err := invoke(t, f, "assign-executor", "default"); err != nil {
		t.Fatalf("assign-executor: %v", err)
	}
	if got := f.Protocol.Executors[f.Env.Provider.Address()]; got != executor {
		t.Fatalf("executor not assigned, got %s", got.Hex())
	}
	if err := invoke(t, f, "unassign-executor"); err != nil {
		t.Fatalf("unassign-executor: %v", err)
	}
	if err := invoke(t, f, "unassign-executor"); err != nil {
		t.Fatalf("second unassign: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 2 {
		t.Fatalf("expected 2 transactions, got %d", n)
	}
}

func TestFaucetRejectionIsSurfaced(t *testing.T) {
	f := envtest.New(t)
	f.Chain.SendErr = errors.New("execution reverted: GelatoTokenFaucet: already minted")

	err := invoke(t, f, "faucet-token", "DAI")
	if xerrors.CodeOf(err) != CodeSubmissionRejected {
		t.Fatalf("expected SUBMISSION_REJECTED, got %v", err)
	}
	if !strings.Contains(xerrors.HintOf(err), "24 hours") {
		t.Fatalf("expected cooldown hint, got %q", xerrors.HintOf(err))
	}
	recs := records(t, f)
	if len(recs) != 1 || recs[0].Status != journal.StatusFailed || recs[0].ErrorCode != string(CodeSubmissionRejected) {
		t.Fatalf("unexpected journal %+v", recs)
	}
}

func TestRevertedReceiptIsConfirmationFailure(t *testing.T) {
	f := envtest.New(t)
	f.Chain.ReceiptStatus = types.ReceiptStatusFailed

	err := invoke(t, f, "faucet-dai")
	if !errors.Is(err, ErrConfirmationFailed) || errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("expected CONFIRMATION_FAILED, got %v", err)
	}
	recs := records(t, f)
	if len(recs) != 1 || recs[0].Status != journal.StatusFailed || recs[0].TxHash == "" {
		t.Fatalf("unexpected journal %+v", recs)
	}
}

func TestUnsignableTransactionLeavesNoJournalRow(t *testing.T) {
	f := envtest.New(t)
	dai := f.Address(t, "DAI")
	_, err := send(context.Background(), f.Env, txRequest{
		command: "faucet-dai", signer: &wallet.Signer{},
		contract: abiutil.DAIFaucet, to: dai, method: "allocateTo",
		args: []any{f.Env.User.Address(), eth("1")},
	})
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected INITIALIZATION_FAILURE, got %v", err)
	}
	if recs := records(t, f); len(recs) != 0 {
		t.Fatalf("nothing was submitted, journal has %+v", recs)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("expected nothing sent, got %d", n)
	}
}

func TestFaucetDAIMintsToUser(t *testing.T) {
	f := envtest.New(t)
	if err := invoke(t, f, "faucet-dai"); err != nil {
		t.Fatalf("faucet-dai: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Contract != abiutil.DAIFaucet || sent[0].Method != "allocateTo" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	if got := f.Protocol.Tokens[f.Address(t, "DAI")][f.Env.User.Address()]; got.Cmp(eth("100")) != 0 {
		t.Fatalf("user DAI = %s", got)
	}
}

func TestProvideTaskSpecSkipsAndUpdatesCeil(t *testing.T) {
	f := envtest.New(t)
	if err := invoke(t, f, "provide-task-spec"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := invoke(t, f, "provide-task-spec"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if err := invoke(t, f, "provide-task-spec", "50"); err != nil {
		t.Fatalf("ceil update: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 2 || sent[0].Method != "provideTaskSpecs" || sent[1].Method != "setTaskSpecGasPriceCeil" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	spec, err := kyberSpec(f.Env, new(big.Int))
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	ceil := f.Protocol.Specs[f.Env.Provider.Address()][spec.Hash()]
	if ceil == nil || ceil.Cmp(big.NewInt(50_000_000_000)) != 0 {
		t.Fatalf("stored ceil = %v", ceil)
	}
}

func TestProvideTaskSpecKeysCeilByChainHash(t *testing.T) {
	f := envtest.New(t)
	provider := f.Env.Provider.Address()
	spec, err := kyberSpec(f.Env, maxGasPriceCeil)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	chainKey := common.HexToHash("0x9b3a705300000000000000000000000000000000000000000000000000000001")
	f.Chain.Returns(abiutil.GelatoCore, "hashTaskSpec", [32]byte(chainKey))
	f.Protocol.ProvideSpec(provider, spec.Hash(), maxGasPriceCeil)
	f.Protocol.ProvideSpec(provider, chainKey, big.NewInt(50_000_000_000))

	if err := invoke(t, f, "provide-task-spec", "50"); err != nil {
		t.Fatalf("provide-task-spec 50: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("ceil stored under the chain key already matches, sent %d", n)
	}
	if err := invoke(t, f, "provide-task-spec"); err != nil {
		t.Fatalf("provide-task-spec: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Method != "setTaskSpecGasPriceCeil" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	if key := common.Hash(sent[0].Args[0].([32]byte)); key != chainKey {
		t.Fatalf("ceil updated under %s, want %s", key.Hex(), chainKey.Hex())
	}
}

func TestKyberSpecWithoutFeeHandler(t *testing.T) {
	f := envtest.New(t)
	spec, err := kyberSpec(f.Env, maxGasPriceCeil)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	actions := spec.Actions()
	if len(actions) != 2 {
		t.Fatalf("expected kyber trade and setRefTime, got %d actions", len(actions))
	}
	if actions[0].Addr != f.Address(t, abiutil.ActionKyberTrade) || actions[1].Addr != f.Address(t, abiutil.ConditionTimeStateful) {
		t.Fatalf("unexpected action order %+v", actions)
	}
}

func TestBatchProvideOnlyFillsGaps(t *testing.T) {
	f := envtest.New(t)
	provider := f.Env.Provider.Address()
	f.Protocol.ProvideModule(provider, f.Address(t, ProviderModuleGelatoUserProxy))

	if err := invoke(t, f, "batch-provide"); err != nil {
		t.Fatalf("batch-provide: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Method != "multiProvide" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	executor, _ := f.Env.Book.Executor(addressbook.DefaultExecutor)
	if sent[0].Args[0].(common.Address) != executor {
		t.Fatalf("executor argument %v", sent[0].Args[0])
	}
	if modules := sent[0].Args[2].([]common.Address); len(modules) != 0 {
		t.Fatalf("module already provided but sent again: %v", modules)
	}
	if sent[0].Value.Cmp(eth("2")) != 0 {
		t.Fatalf("value %s", sent[0].Value)
	}
	if err := invoke(t, f, "batch-provide"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 1 {
		t.Fatalf("second run must not send, total %d", n)
	}
}

func TestMultiUnprovideNeedsExecutorRemoved(t *testing.T) {
	f := envtest.New(t)
	readyProvider(t, f)

	if err := invoke(t, f, "multi-unprovide"); xerrors.CodeOf(err) != CodePreconditionNotMet {
		t.Fatalf("expected PRECONDITION_NOT_MET, got %v", err)
	}
	if err := invoke(t, f, "unassign-executor"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if err := invoke(t, f, "multi-unprovide"); err != nil {
		t.Fatalf("multi-unprovide: %v", err)
	}
	provider := f.Env.Provider.Address()
	if f.Protocol.Funds[provider].Sign() != 0 || f.Protocol.Modules[provider][f.Address(t, ProviderModuleGelatoUserProxy)] {
		t.Fatal("provider still holds funds or module")
	}
	if err := invoke(t, f, "multi-unprovide"); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 2 {
		t.Fatalf("expected 2 transactions, got %d", n)
	}
}

func TestDeployFeeHandler(t *testing.T) {
	f := envtest.New(t)
	if err := invoke(t, f, "deploy-fee-handler", "0.5"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Args[0].(*big.Int).Int64() != 50 {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	if err := invoke(t, f, "deploy-fee-handler", "0.5"); err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 1 {
		t.Fatalf("second deploy must not send, total %d", n)
	}
	for _, bad := range []string{"0", "150", "0.001", "-1"} {
		if err := invoke(t, f, "deploy-fee-handler", bad); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Fatalf("percent %q: expected INVALID_ARGUMENT, got %v", bad, err)
		}
	}
}

func TestWhitelistFeeToken(t *testing.T) {
	f := envtest.New(t)
	for i := 0; i < 2; i++ {
		if err := invoke(t, f, "whitelist-fee-token", "KNC"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if n := len(f.Chain.Sent()); n != 1 {
		t.Fatalf("expected one transaction, got %d", n)
	}
}

func TestCreateAndSetupUserProxy(t *testing.T) {
	f := envtest.New(t)
	if err := invoke(t, f, "setup-user-proxy"); xerrors.CodeOf(err) != CodePreconditionNotMet {
		t.Fatalf("setup before create: expected PRECONDITION_NOT_MET, got %v", err)
	}
	for _, name := range []string{"create-user-proxy", "create-user-proxy", "setup-user-proxy", "setup-user-proxy"} {
		if err := invoke(t, f, name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	sent := f.Chain.Sent()
	if len(sent) != 2 || sent[0].Method != "createTwo" || sent[1].Method != "execAction" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	if sent[1].Value.Cmp(eth("1")) != 0 || sent[1].GasLimit != 500_000 {
		t.Fatalf("setup value %s gas %d", sent[1].Value, sent[1].GasLimit)
	}
	if f.Protocol.Funds[envtest.ProxyAddress].Cmp(eth("1")) != 0 {
		t.Fatalf("proxy funds %s", f.Protocol.Funds[envtest.ProxyAddress])
	}
	if !f.Protocol.Modules[envtest.ProxyAddress][f.Address(t, ProviderModuleGelatoUserProxy)] {
		t.Fatal("module not provided by proxy")
	}
}

func TestERC20ApproveResolvesProxy(t *testing.T) {
	f := envtest.New(t)
	for i := 0; i < 2; i++ {
		if err := invoke(t, f, "erc20-approve", "DAI", ProxyAlias, "3"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Args[0].(common.Address) != envtest.ProxyAddress {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	if sent[0].Args[1].(*big.Int).Cmp(eth("3")) != 0 {
		t.Fatalf("amount %v", sent[0].Args[1])
	}
}

func TestSubmitTaskUniswapPreservesActionOrder(t *testing.T) {
	f := envtest.New(t)
	readyProxy(t, f)
	fundDAI(t, f, "10", "3")

	if err := invoke(t, f, "submit-task-uniswap"); err != nil {
		t.Fatalf("submit-task-uniswap: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].To != envtest.ProxyAddress || sent[0].Method != "submitTaskCycle" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	provider, err := abiutil.Convert[abiutil.Provider](sent[0].Args[0])
	if err != nil || provider.Addr != envtest.ProxyAddress {
		t.Fatalf("provider %+v err %v", provider, err)
	}
	tasks, err := abiutil.Convert[[]abiutil.Task](sent[0].Args[1])
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks %+v err %v", tasks, err)
	}
	if tasks[0].SelfProviderGasLimit.Uint64() != 700_000 {
		t.Fatalf("self provider gas limit %s", tasks[0].SelfProviderGasLimit)
	}
	want := []string{"transferFrom", "approve", "swapExactTokensForTokens", "setRefTime"}
	contracts := []string{abiutil.IERC20, abiutil.IERC20, abiutil.IUniswapV2Router02, abiutil.ConditionTimeStateful}
	if len(tasks[0].Actions) != len(want) {
		t.Fatalf("expected %d actions, got %d", len(want), len(tasks[0].Actions))
	}
	for i, a := range tasks[0].Actions {
		method, _, err := f.Env.ABI.DecodeCall(contracts[i], a.Data)
		if err != nil || method != want[i] {
			t.Fatalf("action %d: method %q err %v", i, method, err)
		}
	}
	if cycles := sent[0].Args[3].(*big.Int); cycles.Uint64() != 3 {
		t.Fatalf("cycles %s", cycles)
	}
	if f.Protocol.TaskCycles != 1 {
		t.Fatalf("task cycles %d", f.Protocol.TaskCycles)
	}
}

func TestSubmitTaskUniswapRequiresDefaultExecutor(t *testing.T) {
	f := envtest.New(t)
	readyProxy(t, f)
	fundDAI(t, f, "10", "3")
	f.Protocol.AssignExecutor(envtest.ProxyAddress, common.HexToAddress("0x00000000000000000000000000000000000e0e0e"))

	err := invoke(t, f, "submit-task-uniswap")
	if xerrors.CodeOf(err) != CodePreconditionNotMet {
		t.Fatalf("expected PRECONDITION_NOT_MET, got %v", err)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("expected nothing sent, got %d", n)
	}
}

func TestSubmitTaskUniswapChecksAllowance(t *testing.T) {
	f := envtest.New(t)
	readyProxy(t, f)
	fundDAI(t, f, "10", "1")

	err := invoke(t, f, "submit-task-uniswap")
	if xerrors.CodeOf(err) != CodePreconditionNotMet || !strings.Contains(xerrors.HintOf(err), "erc20-approve") {
		t.Fatalf("expected allowance precondition, got %v", err)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("expected nothing sent, got %d", n)
	}
}

func TestSubmitTaskKyberRequiresProvidedSpec(t *testing.T) {
	f := envtest.New(t)
	readyProvider(t, f)
	fundDAI(t, f, "10", "3")

	if err := invoke(t, f, "submit-task-kyber"); xerrors.CodeOf(err) != CodePreconditionNotMet {
		t.Fatalf("expected PRECONDITION_NOT_MET, got %v", err)
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("expected nothing sent, got %d", n)
	}
}

func TestSubmitTaskKyberCreatesProxyInSameTransaction(t *testing.T) {
	f := envtest.New(t)
	readyProvider(t, f)
	fundDAI(t, f, "10", "3")
	spec, err := kyberSpec(f.Env, maxGasPriceCeil)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	f.Protocol.ProvideSpec(f.Env.Provider.Address(), spec.Hash(), maxGasPriceCeil)

	if err := invoke(t, f, "submit-task-kyber"); err != nil {
		t.Fatalf("submit-task-kyber: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Method != "createTwoExecActionsSubmitTaskCycle" || sent[0].GasLimit != 4_000_000 {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	if !f.Protocol.ProxyDeployed {
		t.Fatal("proxy not deployed")
	}
	tasks, err := abiutil.Convert[[]abiutil.Task](sent[0].Args[3])
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	task, err := tasks[0].Descriptor()
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	submitted, err := task.Spec(new(big.Int))
	if err != nil {
		t.Fatalf("spec of task: %v", err)
	}
	if submitted.Hash() != spec.Hash() {
		t.Fatal("submitted task does not match the provided spec")
	}

	if err := invoke(t, f, "submit-task-kyber"); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if sent := f.Chain.Sent(); sent[1].Method != "execActionsAndSubmitTaskCycle" || sent[1].To != envtest.ProxyAddress {
		t.Fatalf("deployed proxy must submit directly, got %s to %s", sent[1].Method, sent[1].To.Hex())
	}
}

func TestWithdrawFunds(t *testing.T) {
	f := envtest.New(t)
	readyProxy(t, f)

	if err := invoke(t, f, "withdraw-funds"); err != nil {
		t.Fatalf("withdraw-funds: %v", err)
	}
	if err := invoke(t, f, "withdraw-funds"); err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	sent := f.Chain.Sent()
	if len(sent) != 1 || sent[0].Method != "multiExecActions" {
		t.Fatalf("unexpected transactions %+v", sent)
	}
	actions, err := abiutil.Convert[[]abiutil.Action](sent[0].Args[0])
	if err != nil || len(actions) != 2 {
		t.Fatalf("actions %+v err %v", actions, err)
	}
	if actions[1].Addr != f.Address(t, abiutil.ActionTransfer) || actions[1].Operation != 1 {
		t.Fatalf("second action must delegatecall ActionTransfer, got %+v", actions[1])
	}
}

func TestInvokeValidatesArguments(t *testing.T) {
	f := envtest.New(t)
	if err := invoke(t, f, "deploy-fee-handler"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if err := invoke(t, f, "no-such-command"); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	f.Env.Client = nil
	if err := invoke(t, f, "gas-price"); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected INITIALIZATION_FAILURE without a client, got %v", err)
	}
}

func TestABIEncodeDecodeOffline(t *testing.T) {
	f := envtest.New(t)
	f.Env.Client = nil
	f.Env.User, f.Env.Provider = nil, nil

	if err := invoke(t, f, "abi-encode", abiutil.IERC20, "approve", "DAI", "1000"); err != nil {
		t.Fatalf("abi-encode: %v", err)
	}
	var calldata string
	for _, line := range strings.Split(f.Out.String(), "\n") {
		if strings.Contains(line, "calldata:") {
			fields := strings.Fields(line)
			calldata = fields[len(fields)-1]
		}
	}
	if !strings.HasPrefix(calldata, "0x095ea7b3") {
		t.Fatalf("unexpected calldata %q", calldata)
	}
	f.Out.Reset()
	if err := invoke(t, f, "abi-decode", calldata); err != nil {
		t.Fatalf("abi-decode: %v", err)
	}
	out := f.Out.String()
	if !strings.Contains(out, "approve") || !strings.Contains(out, f.Address(t, "DAI").Hex()) || !strings.Contains(out, "1000") {
		t.Fatalf("unexpected decode output:\n%s", out)
	}
}

func TestReadOnlyCommandsSendNothing(t *testing.T) {
	f := envtest.New(t)
	fundDAI(t, f, "7", "2")
	for _, c := range [][]string{
		{"erc20-balance", "DAI"},
		{"erc20-allowance", "DAI", ProxyAlias},
		{"gas-price"},
		{"network-info"},
		{"journal"},
	} {
		if err := invoke(t, f, c[0], c[1:]...); err != nil {
			t.Fatalf("%s: %v", c[0], err)
		}
	}
	if n := len(f.Chain.Sent()); n != 0 {
		t.Fatalf("read-only commands sent %d transactions", n)
	}
	out := f.Out.String()
	for _, want := range []string{"7", "2", "20 gwei", "GelatoCore"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestVerbosePrintsReturnValues(t *testing.T) {
	f := envtest.New(t)
	f.Env.Verbose = true
	f.Protocol.ProvideModule(f.Env.Provider.Address(), f.Address(t, ProviderModuleGelatoUserProxy))

	if err := invoke(t, f, "add-provider-module"); err != nil {
		t.Fatalf("add-provider-module: %v", err)
	}
	if !strings.Contains(f.Out.String(), "GelatoCore.isModuleProvided") {
		t.Fatalf("expected decoded return values in the output:\n%s", f.Out.String())
	}
}
