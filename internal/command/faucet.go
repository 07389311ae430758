package command

import (
	"context"
	"fmt"
	"math/big"

	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
)

// faucetDAIAmount is what one allocateTo call mints.
var faucetDAIAmount = abiutil.MustParseUnits("100", 18)

func init() {
	register(
		Command{
			Name: "faucet-dai", Category: CategoryFaucet, Chain: true, Signers: true,
			Usage: "mint 100 test DAI to the user", Run: faucetDAI,
		},
		Command{
			Name: "faucet-token", Category: CategoryFaucet, Chain: true, Signers: true,
			Usage:     "request a token from the Gelato token faucet",
			ArgsUsage: "<token>", MinArgs: 1, MaxArgs: 1, Run: faucetToken,
		},
	)
}

func faucetDAI(ctx context.Context, env *environment.Env, _ []string) error {
	dai, err := env.Book.Token("DAI")
	if err != nil {
		return err
	}
	_, err = send(ctx, env, txRequest{
		command: "faucet-dai", signer: env.User,
		contract: abiutil.DAIFaucet, to: dai, method: "allocateTo",
		args: []any{env.User.Address(), new(big.Int).Set(faucetDAIAmount)},
	})
	return err
}

func faucetToken(ctx context.Context, env *environment.Env, args []string) error {
	token, ok := env.Resolve(args[0])
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知代币 %s", args[0]))
	}
	faucet, err := deployment(env, abiutil.GelatoTokenFaucet)
	if err != nil {
		return err
	}
	_, err = send(ctx, env, txRequest{
		command: "faucet-token", signer: env.User,
		contract: abiutil.GelatoTokenFaucet, to: faucet, method: "mint",
		args:       []any{token},
		rejectHint: "the faucet pays each address once every 24 hours",
	})
	return err
}
