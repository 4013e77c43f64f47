package runtime

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

// SignatureVerifier checks the signatures of a transaction against its
// required signers.
type SignatureVerifier interface {
	Verify(tx *solana.Transaction) error
}

// Ed25519Verifier verifies every required signature in parallel.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(tx *solana.Transaction) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serializing message: %w", err)
	}

	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != numSigners || len(tx.Message.AccountKeys) < numSigners {
		return fmt.Errorf("got %d signatures for %d signers", len(tx.Signatures), numSigners)
	}

	var group errgroup.Group
	for idx, sig := range tx.Signatures {
		sig := sig
		signer := tx.Message.AccountKeys[idx]
		group.Go(func() error {
			if !sig.Verify(signer, msg) {
				return fmt.Errorf("invalid signature by %s", signer)
			}
			return nil
		})
	}
	return group.Wait()
}
