package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// AccountFromPrivateKey creates a neo-go signing account from a hex-encoded
// private key (without 0x prefix).
func AccountFromPrivateKey(privateKeyHex string) (*wallet.Account, error) {
	priv, err := keys.NewPrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(priv), nil
}

// =============================================================================
// Transaction Builder
// =============================================================================

const (
	// validUntilBlockDelta is how many blocks a built transaction stays valid.
	validUntilBlockDelta = 240

	// baseNetworkFee covers the single-signature witness verification cost.
	baseNetworkFee = 1_200_000 // 0.012 GAS

	// feePerByte is the network fee per transaction byte.
	feePerByte = 1_000
)

// TxBuilder builds, signs, and broadcasts transactions from simulation results.
type TxBuilder struct {
	client    *Client
	networkID uint32
}

// NewTxBuilder creates a transaction builder bound to a client and network.
func NewTxBuilder(client *Client, networkID uint32) *TxBuilder {
	return &TxBuilder{client: client, networkID: networkID}
}

// BuildAndSignTx converts an invokefunction simulation into a signed transaction.
// The simulation must have been run with the signer's script hash so the
// returned script and gas estimate match the real execution.
func (b *TxBuilder) BuildAndSignTx(ctx context.Context, sim *InvokeResult, signer *wallet.Account, scope transaction.WitnessScope) (*transaction.Transaction, error) {
	script, err := base64.StdEncoding.DecodeString(sim.Script)
	if err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	sysFee, err := strconv.ParseInt(sim.GasConsumed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse gas consumed %q: %w", sim.GasConsumed, err)
	}

	height, err := b.client.GetBlockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block count: %w", err)
	}

	tx := transaction.New(script, sysFee)
	tx.Nonce = rand.Uint32()
	tx.ValidUntilBlock = height + validUntilBlockDelta
	tx.Signers = []transaction.Signer{{
		Account: signer.ScriptHash(),
		Scopes:  scope,
	}}

	// Size-based estimate; the witness added by SignTx is already priced in
	// via baseNetworkFee.
	tx.NetworkFee = baseNetworkFee + int64(len(script))*feePerByte

	if err := signer.SignTx(netmode.Magic(b.networkID), tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return tx, nil
}

// BroadcastTx broadcasts a signed transaction and returns its hash.
func (b *TxBuilder) BroadcastTx(ctx context.Context, tx *transaction.Transaction) (string, error) {
	raw := base64.StdEncoding.EncodeToString(tx.Bytes())
	hash, err := b.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}
	return hash, nil
}

// =============================================================================
// Signed Invocation
// =============================================================================

// InvokeFunctionWithSignerAndWait simulates, builds, signs, and broadcasts a
// contract invocation, then waits for its application log. The returned
// TxResult carries the final VM state from the executed transaction.
func (c *Client) InvokeFunctionWithSignerAndWait(ctx context.Context, contractHash, method string, params []ContractParam, signer *wallet.Account, scope transaction.WitnessScope) (*TxResult, error) {
	signers := []Signer{{
		Account: "0x" + signer.ScriptHash().StringLE(),
		Scopes:  scope.String(),
	}}

	sim, err := c.InvokeFunctionWithSigners(ctx, contractHash, method, params, signers)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", method, err)
	}
	if sim.State != "HALT" {
		return nil, fmt.Errorf("%s simulation faulted: %s", method, sim.Exception)
	}

	builder := NewTxBuilder(c, c.networkID)
	tx, err := builder.BuildAndSignTx(ctx, sim, signer, scope)
	if err != nil {
		return nil, fmt.Errorf("build %s transaction: %w", method, err)
	}

	txHash, err := builder.BroadcastTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	result := &TxResult{
		TxHash:  txHash,
		VMState: sim.State,
	}

	wctx, cancel := context.WithTimeout(ctx, DefaultTxWaitTimeout)
	defer cancel()

	appLog, err := c.WaitForApplicationLog(wctx, txHash, DefaultPollInterval)
	if err != nil {
		return result, fmt.Errorf("wait for %s execution: %w", method, err)
	}

	result.AppLog = appLog
	if len(appLog.Executions) > 0 {
		result.VMState = appLog.Executions[0].VMState
		if result.VMState != "HALT" {
			return result, fmt.Errorf("%s reverted with state %s", method, result.VMState)
		}
	}

	return result, nil
}
