// Package evm implements the exact payment scheme for EVM networks using
// EIP-3009 TransferWithAuthorization. It maps legacy network names to chain
// ids, builds and validates the EIP-712 typed-data document a wallet signs,
// hashes it the way the token contract does, and assembles the signed
// payload that travels in the X-PAYMENT header.
package evm
