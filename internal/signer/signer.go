// Package signer abstracts over a local ECDSA private key and a remote
// web3signer instance, grounded on original_source/common/src/signer/mod.rs.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxSigner signs L1/L2 transactions on behalf of the preconfer address,
// either locally or through a remote signer.
type TxSigner interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, signer types.Signer) (*types.Transaction, error)
}

// LocalKeySigner signs with an in-process ECDSA private key.
type LocalKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalKeySigner parses a hex-encoded ECDSA private key, mirroring
// Rust's `Signer::PrivateKey` construction via `PrivateKeySigner::from_str`.
func NewLocalKeySigner(hexKey string) (*LocalKeySigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return &LocalKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *LocalKeySigner) Address() common.Address { return s.address }

func (s *LocalKeySigner) SignTx(_ context.Context, tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	return types.SignTx(tx, signer, s.key)
}

// RemoteSigner signs by delegating to a remote web3signer instance over its
// Ethereum JSON-RPC surface, mirroring Rust's `Signer::Web3signer`.
type RemoteSigner struct {
	client  *web3SignerClient
	address common.Address
}

// NewRemoteSigner dials a web3signer instance at rpcURL for the declared
// preconferAddress; the declared address is required up front because
// web3signer exposes many keys and the caller must say which one to use.
func NewRemoteSigner(rpcURL string, preconferAddress common.Address) (*RemoteSigner, error) {
	client, err := newWeb3SignerClient(rpcURL)
	if err != nil {
		return nil, err
	}
	return &RemoteSigner{client: client, address: preconferAddress}, nil
}

func (s *RemoteSigner) Address() common.Address { return s.address }

func (s *RemoteSigner) SignTx(ctx context.Context, tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	return s.client.signTransaction(ctx, s.address, tx, signer)
}

// New constructs the signer the configuration selects: a remote web3signer
// when rpcURL is non-empty, otherwise a local private key. The two are
// mutually exclusive, matching spec.md §6's "One signer is mandatory" rule.
func New(rpcURL string, preconferAddress common.Address, hexKey string) (TxSigner, error) {
	switch {
	case rpcURL != "" && hexKey != "":
		return nil, fmt.Errorf("signer: web3signer url and local private key are mutually exclusive")
	case rpcURL != "":
		return NewRemoteSigner(rpcURL, preconferAddress)
	case hexKey != "":
		return NewLocalKeySigner(hexKey)
	default:
		return nil, fmt.Errorf("signer: no signer configured")
	}
}
