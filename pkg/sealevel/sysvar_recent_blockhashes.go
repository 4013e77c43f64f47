package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/rent"
)

const SysvarRecentBlockHashesAddrStr = "SysvarRecentB1ockHashes11111111111111111111"

var SysvarRecentBlockHashesAddr = solana.MustPublicKeyFromBase58(SysvarRecentBlockHashesAddrStr)

const MaxRecentBlockhashEntries = 150

type RecentBlockHashesEntry struct {
	Blockhash     solana.Hash
	FeeCalculator FeeCalculator
}

// SysvarRecentBlockhashes lists the most recent blockhashes, newest first.
type SysvarRecentBlockhashes []RecentBlockHashesEntry

// NewRecentBlockhashes builds the sysvar from hashes ordered oldest first,
// keeping at most MaxRecentBlockhashEntries.
func NewRecentBlockhashes(hashes []solana.Hash, lamportsPerSignature uint64) SysvarRecentBlockhashes {
	n := min(len(hashes), MaxRecentBlockhashEntries)
	rbh := make(SysvarRecentBlockhashes, 0, n)
	for idx := len(hashes) - 1; idx >= len(hashes)-n; idx-- {
		rbh = append(rbh, RecentBlockHashesEntry{
			Blockhash:     hashes[idx],
			FeeCalculator: FeeCalculator{LamportsPerSignature: lamportsPerSignature},
		})
	}
	return rbh
}

func (recentBlockhashes *SysvarRecentBlockhashes) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	numBlockhashes, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read length when decoding SysvarRecentBlockhashes: %w", err)
	}
	if numBlockhashes > MaxRecentBlockhashEntries {
		return fmt.Errorf("too many entries in SysvarRecentBlockhashes: %d", numBlockhashes)
	}

	*recentBlockhashes = make(SysvarRecentBlockhashes, 0, numBlockhashes)
	for count := uint64(0); count < numBlockhashes; count++ {
		var entry RecentBlockHashesEntry
		hash, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err != nil {
			return fmt.Errorf("failed to read Blockhash when decoding SysvarRecentBlockhashes: %w", err)
		}
		copy(entry.Blockhash[:], hash)

		entry.FeeCalculator.LamportsPerSignature, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return fmt.Errorf("failed to read LamportsPerSignature when decoding SysvarRecentBlockhashes: %w", err)
		}

		*recentBlockhashes = append(*recentBlockhashes, entry)
	}
	return nil
}

func (recentBlockhashes *SysvarRecentBlockhashes) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint64(uint64(len(*recentBlockhashes)), bin.LE)
	if err != nil {
		return err
	}

	for _, entry := range *recentBlockhashes {
		if err = encoder.WriteBytes(entry.Blockhash[:], false); err != nil {
			return err
		}
		if err = encoder.WriteUint64(entry.FeeCalculator.LamportsPerSignature, bin.LE); err != nil {
			return err
		}
	}
	return nil
}

func (recentBlockhashes *SysvarRecentBlockhashes) GetLatest() (RecentBlockHashesEntry, bool) {
	if len(*recentBlockhashes) == 0 {
		return RecentBlockHashesEntry{}, false
	}
	return (*recentBlockhashes)[0], true
}

func ReadRecentBlockHashesSysvar(accts accounts.Reader) (SysvarRecentBlockhashes, error) {
	acct, ok := accts.GetAccount(SysvarRecentBlockHashesAddr)
	if !ok || len(acct.Data) == 0 {
		return nil, InstrErrUnsupportedSysvar
	}

	var recentBlockhashes SysvarRecentBlockhashes
	if err := recentBlockhashes.UnmarshalWithDecoder(bin.NewBinDecoder(acct.Data)); err != nil {
		return nil, InstrErrUnsupportedSysvar
	}
	return recentBlockhashes, nil
}

func WriteRecentBlockHashesSysvar(accts accounts.Accounts, recentBlockhashes SysvarRecentBlockhashes, r rent.Rent) {
	buf := new(bytes.Buffer)
	if err := recentBlockhashes.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		panic(err)
	}
	writeSysvar(accts, SysvarRecentBlockHashesAddr, buf.Bytes(), r)
}
