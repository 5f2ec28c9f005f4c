// Package asset moves token principal and native interest between the
// service custody account and position owners. The on-chain implementations
// talk to an Ethereum JSON-RPC endpoint; the in-memory vault backs tests and
// single-process deployments.
package asset

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// defaultGasLimit covers an ERC-20 transfer with headroom for non-trivial
// token implementations.
const defaultGasLimit = 120_000

// Wallet holds the custody account key and submits signed transactions to an
// Ethereum node. Custodian and Payer share one Wallet so that nonces are
// issued from a single account.
type Wallet struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	logger  *slog.Logger
}

// NewWallet dials the RPC endpoint and derives the custody address from the
// hex-encoded private key.
func NewWallet(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, logger *slog.Logger) (*Wallet, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("asset: dial %s: %w", rpcURL, err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("asset: invalid custody key: %w", err)
	}

	return &Wallet{
		client:  client,
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		logger:  logger.With("component", "asset_wallet"),
	}, nil
}

// Address returns the custody account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// Close releases the underlying RPC connection.
func (w *Wallet) Close() {
	w.client.Close()
}

// sendAndWait signs a transaction from the custody account, submits it, and
// blocks until it is mined. A reverted transaction is an error even though
// the node accepted it.
func (w *Wallet) sendAndWait(ctx context.Context, to common.Address, value *big.Int, data []byte) error {
	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return fmt.Errorf("asset: pending nonce: %w", err)
	}

	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("asset: suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      defaultGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return fmt.Errorf("asset: sign tx: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("asset: send tx: %w", err)
	}

	w.logger.Debug("transaction submitted",
		"tx_hash", signed.Hash().Hex(),
		"to", to.Hex(),
		"nonce", nonce,
	)

	receipt, err := bind.WaitMined(ctx, w.client, signed)
	if err != nil {
		return fmt.Errorf("asset: wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("asset: tx %s reverted", signed.Hash().Hex())
	}
	return nil
}
