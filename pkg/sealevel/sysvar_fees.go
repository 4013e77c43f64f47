package sealevel

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/rent"
)

const SysvarFeesAddrStr = "SysvarFees111111111111111111111111111111111"

var SysvarFeesAddr = solana.MustPublicKeyFromBase58(SysvarFeesAddrStr)

const SysvarFeesStructLen = 8

type FeeCalculator struct {
	LamportsPerSignature uint64
}

type SysvarFees struct {
	FeeCalculator FeeCalculator
}

func (sf *SysvarFees) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	sf.FeeCalculator.LamportsPerSignature, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LamportsPerSignature when decoding SysvarFees: %w", err)
	}
	return
}

func ReadFeesSysvar(accts accounts.Reader) (SysvarFees, error) {
	var fees SysvarFees
	acct, ok := accts.GetAccount(SysvarFeesAddr)
	if !ok {
		return fees, fmt.Errorf("fees sysvar account missing: %w", InstrErrMissingAccount)
	}

	err := fees.UnmarshalWithDecoder(bin.NewBinDecoder(acct.Data))
	return fees, err
}

func WriteFeesSysvar(accts accounts.Accounts, fees SysvarFees, r rent.Rent) {
	data := make([]byte, SysvarFeesStructLen)
	bin.LE.PutUint64(data, fees.FeeCalculator.LamportsPerSignature)
	writeSysvar(accts, SysvarFeesAddr, data, r)
}
