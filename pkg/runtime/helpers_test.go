package runtime

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	rt, err := New(opts...)
	require.NoError(t, err)
	return rt
}

func newKeypair(t *testing.T) solana.PrivateKey {
	privKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return privKey
}

// signedTx builds a transaction against the latest blockhash, paid for by
// the first signer.
func signedTx(t *testing.T, rt *Runtime, instrs []solana.Instruction, signers ...solana.PrivateKey) *solana.Transaction {
	tx, err := solana.NewTransaction(instrs, rt.LatestBlockhash(), solana.TransactionPayer(signers[0].PublicKey()))
	require.NoError(t, err)

	_, err = tx.Sign(func(pubkey solana.PublicKey) *solana.PrivateKey {
		for idx := range signers {
			if signers[idx].PublicKey() == pubkey {
				return &signers[idx]
			}
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func transferTx(t *testing.T, rt *Runtime, from solana.PrivateKey, to solana.PublicKey, lamports uint64) *solana.Transaction {
	instr := system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()
	return signedTx(t, rt, []solana.Instruction{instr}, from)
}

func fundedKeypair(t *testing.T, rt *Runtime, lamports uint64) solana.PrivateKey {
	kp := newKeypair(t)
	_, err := rt.Airdrop(kp.PublicKey(), lamports)
	require.NoError(t, err)
	return kp
}
