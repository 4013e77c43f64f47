package sealevel

import (
	"bytes"
	"fmt"
	"math/bits"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/rent"
)

const SysvarEpochScheduleAddrStr = "SysvarEpochSchedu1e111111111111111111111111"

var SysvarEpochScheduleAddr = solana.MustPublicKeyFromBase58(SysvarEpochScheduleAddrStr)

const (
	SysvarEpochScheduleStructLen = 33
	DefaultSlotsPerEpoch         = 432000
	MinimumSlotsPerEpoch         = 32
)

type SysvarEpochSchedule struct {
	SlotsPerEpoch            uint64
	LeaderScheduleSlotOffset uint64
	Warmup                   bool
	FirstNormalEpoch         uint64
	FirstNormalSlot          uint64
}

// NewEpochSchedule derives the first normal epoch and slot. With warmup,
// epochs start at MinimumSlotsPerEpoch slots and double until they reach
// slotsPerEpoch.
func NewEpochSchedule(slotsPerEpoch uint64, leaderScheduleSlotOffset uint64, warmup bool) SysvarEpochSchedule {
	es := SysvarEpochSchedule{
		SlotsPerEpoch:            max(slotsPerEpoch, MinimumSlotsPerEpoch),
		LeaderScheduleSlotOffset: leaderScheduleSlotOffset,
		Warmup:                   warmup,
	}
	if warmup {
		pow := nextPowerOfTwo(es.SlotsPerEpoch)
		es.FirstNormalEpoch = uint64(bits.TrailingZeros64(pow) - bits.TrailingZeros64(MinimumSlotsPerEpoch))
		es.FirstNormalSlot = pow - MinimumSlotsPerEpoch
	}
	return es
}

func DefaultEpochSchedule() SysvarEpochSchedule {
	return NewEpochSchedule(DefaultSlotsPerEpoch, DefaultSlotsPerEpoch, true)
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(n-1))
}

func (es *SysvarEpochSchedule) SlotsInEpoch(epoch uint64) uint64 {
	if epoch < es.FirstNormalEpoch {
		return 1 << (epoch + uint64(bits.TrailingZeros64(MinimumSlotsPerEpoch)))
	}
	return es.SlotsPerEpoch
}

// GetEpochAndSlotIndex returns the epoch containing slot and the offset of
// slot within it.
func (es *SysvarEpochSchedule) GetEpochAndSlotIndex(slot uint64) (uint64, uint64) {
	if slot < es.FirstNormalSlot {
		epoch := uint64(bits.TrailingZeros64(nextPowerOfTwo(slot+MinimumSlotsPerEpoch+1)) -
			bits.TrailingZeros64(MinimumSlotsPerEpoch) - 1)
		epochLen := es.SlotsInEpoch(epoch)
		return epoch, slot - (epochLen - MinimumSlotsPerEpoch)
	}

	normalSlotIdx := slot - es.FirstNormalSlot
	return es.FirstNormalEpoch + normalSlotIdx/es.SlotsPerEpoch, normalSlotIdx % es.SlotsPerEpoch
}

func (es *SysvarEpochSchedule) GetEpoch(slot uint64) uint64 {
	epoch, _ := es.GetEpochAndSlotIndex(slot)
	return epoch
}

// GetLeaderScheduleEpoch is the epoch whose leader schedule is generated at
// slot.
func (es *SysvarEpochSchedule) GetLeaderScheduleEpoch(slot uint64) uint64 {
	if slot < es.FirstNormalSlot {
		return es.GetEpoch(slot) + 1
	}
	return es.FirstNormalEpoch + (slot-es.FirstNormalSlot+es.LeaderScheduleSlotOffset)/es.SlotsPerEpoch
}

func (es *SysvarEpochSchedule) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	es.SlotsPerEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read SlotsPerEpoch when decoding SysvarEpochSchedule: %w", err)
	}

	es.LeaderScheduleSlotOffset, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LeaderScheduleSlotOffset when decoding SysvarEpochSchedule: %w", err)
	}

	es.Warmup, err = decoder.ReadBool()
	if err != nil {
		return fmt.Errorf("failed to read Warmup when decoding SysvarEpochSchedule: %w", err)
	}

	es.FirstNormalEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read FirstNormalEpoch when decoding SysvarEpochSchedule: %w", err)
	}

	es.FirstNormalSlot, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read FirstNormalSlot when decoding SysvarEpochSchedule: %w", err)
	}
	return
}

func (es *SysvarEpochSchedule) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(es.SlotsPerEpoch, bin.LE)
	_ = encoder.WriteUint64(es.LeaderScheduleSlotOffset, bin.LE)
	_ = encoder.WriteBool(es.Warmup)
	_ = encoder.WriteUint64(es.FirstNormalEpoch, bin.LE)
	return encoder.WriteUint64(es.FirstNormalSlot, bin.LE)
}

func ReadEpochScheduleSysvar(accts accounts.Reader) (SysvarEpochSchedule, error) {
	var es SysvarEpochSchedule
	acct, ok := accts.GetAccount(SysvarEpochScheduleAddr)
	if !ok {
		return es, fmt.Errorf("epoch schedule sysvar account missing: %w", InstrErrMissingAccount)
	}

	err := es.UnmarshalWithDecoder(bin.NewBinDecoder(acct.Data))
	return es, err
}

func WriteEpochScheduleSysvar(accts accounts.Accounts, es SysvarEpochSchedule, r rent.Rent) {
	buf := new(bytes.Buffer)
	if err := es.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		panic(err)
	}
	writeSysvar(accts, SysvarEpochScheduleAddr, buf.Bytes(), r)
}
