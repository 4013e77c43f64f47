package sealevel

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/rent"
)

const SysvarRentAddrStr = "SysvarRent111111111111111111111111111111111"

var SysvarRentAddr = solana.MustPublicKeyFromBase58(SysvarRentAddrStr)

func ReadRentSysvar(accts accounts.Reader) (rent.Rent, error) {
	var r rent.Rent
	rentAcct, ok := accts.GetAccount(SysvarRentAddr)
	if !ok {
		return r, fmt.Errorf("rent sysvar account missing: %w", InstrErrMissingAccount)
	}

	err := r.UnmarshalWithDecoder(bin.NewBinDecoder(rentAcct.Data))
	return r, err
}

func WriteRentSysvar(accts accounts.Accounts, r rent.Rent) {
	writeSysvar(accts, SysvarRentAddr, r.Marshal(), r)
}

// writeSysvar stores a sysvar account funded to its rent-exempt minimum.
func writeSysvar(accts accounts.Accounts, addr solana.PublicKey, data []byte, r rent.Rent) {
	lamports := max(r.MinimumBalance(uint64(len(data))), 1)
	accts.SetAccount(addr, &accounts.Account{Lamports: lamports, Data: data, Owner: SysvarOwnerAddr})
}
