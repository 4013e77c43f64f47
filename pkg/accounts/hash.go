package accounts

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"
)

// Hash computes the blake3 account hash over lamports, rent epoch, data,
// executable flag, owner and address, in that order.
func Hash(key solana.PublicKey, acct *Account) [32]byte {
	hasher := blake3.New()

	var lamportBytes [8]byte
	binary.LittleEndian.PutUint64(lamportBytes[:], acct.Lamports)
	_, _ = hasher.Write(lamportBytes[:])

	var rentEpochBytes [8]byte
	binary.LittleEndian.PutUint64(rentEpochBytes[:], acct.RentEpoch)
	_, _ = hasher.Write(rentEpochBytes[:])

	_, _ = hasher.Write(acct.Data)

	if acct.Executable {
		_, _ = hasher.Write([]byte{1})
	} else {
		_, _ = hasher.Write([]byte{0})
	}

	_, _ = hasher.Write(acct.Owner[:])
	_, _ = hasher.Write(key[:])

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
