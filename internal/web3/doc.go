// Package web3 houses blockchain connectivity: the YAML network profiles,
// the chain client contract used by the commands, and the receipt/snapshot
// types shared between the ethereum client and its callers.
package web3
