package runtime

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Airdrop transfers lamports from the faucet to key. The transfer is an
// ordinary transaction signed by the faucet: it goes through the full
// pipeline and the callback sees it. The faucet pays the fee unless fee
// exempt airdrops are enabled.
//
// Airdrops are signed deterministically, so repeating the same airdrop
// before the blockhash changes fails with TxErrAlreadyProcessed.
func (r *Runtime) Airdrop(key solana.PublicKey, lamports uint64) (*TransactionMetadata, error) {
	faucet := r.faucet.PublicKey()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, faucet, key).Build()},
		r.LatestBlockhash(),
		solana.TransactionPayer(faucet),
	)
	if err != nil {
		return nil, fmt.Errorf("building airdrop transaction: %w", err)
	}

	_, err = tx.Sign(func(pubkey solana.PublicKey) *solana.PrivateKey {
		if pubkey == faucet {
			return &r.faucet
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("signing airdrop transaction: %w", err)
	}

	r.metrics.airdrops.Inc()
	return r.send(tx, processOpts{commit: true, feeExempt: r.cfg.FeeExemptAirdrops})
}
