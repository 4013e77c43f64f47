package accounts

import (
	"bytes"
	"io"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Reader is read-only access to accounts.
type Reader interface {
	GetAccount(pubkey solana.PublicKey) (*Account, bool)
}

type Accounts interface {
	Reader
	SetAccount(pubkey solana.PublicKey, acct *Account)
}

type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      solana.PublicKey
	Executable bool
	RentEpoch  uint64
}

// KeyedAccount pairs an account with the address it is stored under.
type KeyedAccount struct {
	Key solana.PublicKey
	Account
}

// NewAccount returns a zero-filled account of the given size.
func NewAccount(lamports uint64, space uint64, owner solana.PublicKey) *Account {
	return &Account{Lamports: lamports, Data: make([]byte, space), Owner: owner}
}

func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = make([]byte, len(a.Data))
		copy(c.Data, a.Data)
	}
	return &c
}

func (a *Account) Equal(other *Account) bool {
	return a.Lamports == other.Lamports &&
		a.Owner == other.Owner &&
		a.RentEpoch == other.RentEpoch &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}

func (a *Account) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	a.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	var dataLen uint64
	dataLen, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	if dataLen > uint64(decoder.Remaining()) {
		return io.ErrUnexpectedEOF
	}
	a.Data, err = decoder.ReadNBytes(int(dataLen))
	if err != nil {
		return err
	}
	owner, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(a.Owner[:], owner)
	a.Executable, err = decoder.ReadBool()
	if err != nil {
		return err
	}
	a.RentEpoch, err = decoder.ReadUint64(bin.LE)
	return
}

func (a *Account) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(a.Lamports, bin.LE)
	_ = encoder.WriteUint64(uint64(len(a.Data)), bin.LE)
	_ = encoder.WriteBytes(a.Data, false)
	_ = encoder.WriteBytes(a.Owner[:], false)
	_ = encoder.WriteBool(a.Executable)
	return encoder.WriteUint64(a.RentEpoch, bin.LE)
}

func (a *Account) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := a.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (*Account, error) {
	acct := new(Account)
	err := acct.UnmarshalWithDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, err
	}
	return acct, nil
}
