package sealevel

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"go.firedancer.io/litesvm/pkg/safemath"
	"k8s.io/klog/v2"
)

const (
	MinHeapFrameBytes                  = (32 * 1024)
	MaxHeapFrameBytes                  = (256 * 1024)
	HeapFrameBytesMultiple             = 1024
	DefaultInstructionComputeUnitLimit = 200000
	MaxComputeUnitLimit                = 1400000
	MaxLoadedAccountsDataSizeBytes     = (64 * 1024 * 1024)
)

// ComputeBudgetLimits is the budget a transaction requested through its
// compute budget instructions, with defaults filled in.
type ComputeBudgetLimits struct {
	UpdatedHeapBytes   uint32
	ComputeUnitLimit   uint32
	ComputeUnitPrice   uint64
	LoadedAccountBytes uint32
}

const (
	ComputeBudgetInstrTypeRequestHeapFrame               = 1
	ComputeBudgetInstrTypeSetComputeUnitLimit            = 2
	ComputeBudgetInstrTypeSetComputeUnitPrice            = 3
	ComputeBudgetInstrTypeSetLoadedAccountsDataSizeLimit = 4
)

// NewSetComputeUnitLimitInstruction builds a SetComputeUnitLimit instruction.
func NewSetComputeUnitLimitInstruction(units uint32) Instruction {
	buf := new(bytes.Buffer)
	encoder := bin.NewBorshEncoder(buf)
	_ = encoder.WriteUint8(ComputeBudgetInstrTypeSetComputeUnitLimit)
	_ = encoder.WriteUint32(units, bin.LE)
	return Instruction{ProgramId: ComputeBudgetProgramAddr, Data: buf.Bytes()}
}

// NewSetComputeUnitPriceInstruction builds a SetComputeUnitPrice instruction.
func NewSetComputeUnitPriceInstruction(microLamports uint64) Instruction {
	buf := new(bytes.Buffer)
	encoder := bin.NewBorshEncoder(buf)
	_ = encoder.WriteUint8(ComputeBudgetInstrTypeSetComputeUnitPrice)
	_ = encoder.WriteUint64(microLamports, bin.LE)
	return Instruction{ProgramId: ComputeBudgetProgramAddr, Data: buf.Bytes()}
}

func sanitizeRequestedHeapSize(len uint32) bool {
	return len >= MinHeapFrameBytes && len <= MaxHeapFrameBytes && (len%HeapFrameBytesMultiple == 0)
}

// ComputeBudgetExecuteInstructions scans a transaction's instructions for
// compute budget requests. Without an explicit limit every other instruction
// is granted defaultUnitsPerInstr, capped at MaxComputeUnitLimit. The returned
// index identifies the offending instruction on error.
func ComputeBudgetExecuteInstructions(instructions []Instruction, defaultUnitsPerInstr uint32) (*ComputeBudgetLimits, int, error) {
	var hasRequestedHeapSize bool
	var hasComputeUnitLimit bool
	var hasComputeUnitPrice bool
	var hasUpdatedLoadedAccountsDataSizeLimit bool

	var numNonComputeBudgetInstrs uint32
	var requestedHeapSize uint32
	var updatedComputeUnitLimit uint32
	var updatedLoadedAccountsDataSizeLimit uint32
	var updatedComputeUnitPrice uint64

	for idx, instr := range instructions {
		if instr.ProgramId != ComputeBudgetProgramAddr {
			numNonComputeBudgetInstrs++
			continue
		}

		decoder := bin.NewBorshDecoder(instr.Data)

		instrType, err := decoder.ReadUint8()
		if err != nil {
			return nil, idx, InstrErrInvalidInstructionData
		}

		switch instrType {
		case ComputeBudgetInstrTypeRequestHeapFrame:
			requestedSize, err := decoder.ReadUint32(bin.LE)
			if err != nil || hasRequestedHeapSize || !sanitizeRequestedHeapSize(requestedSize) {
				return nil, idx, InstrErrInvalidInstructionData
			}
			hasRequestedHeapSize = true
			requestedHeapSize = requestedSize

		case ComputeBudgetInstrTypeSetComputeUnitLimit:
			units, err := decoder.ReadUint32(bin.LE)
			if err != nil || hasComputeUnitLimit {
				return nil, idx, InstrErrInvalidInstructionData
			}
			hasComputeUnitLimit = true
			updatedComputeUnitLimit = units

		case ComputeBudgetInstrTypeSetComputeUnitPrice:
			microLamports, err := decoder.ReadUint64(bin.LE)
			if err != nil || hasComputeUnitPrice {
				return nil, idx, InstrErrInvalidInstructionData
			}
			hasComputeUnitPrice = true
			updatedComputeUnitPrice = microLamports

		case ComputeBudgetInstrTypeSetLoadedAccountsDataSizeLimit:
			size, err := decoder.ReadUint32(bin.LE)
			if err != nil || hasUpdatedLoadedAccountsDataSizeLimit {
				return nil, idx, InstrErrInvalidInstructionData
			}
			hasUpdatedLoadedAccountsDataSizeLimit = true
			updatedLoadedAccountsDataSizeLimit = size

		default:
			return nil, idx, InstrErrInvalidInstructionData
		}
	}

	limits := &ComputeBudgetLimits{
		UpdatedHeapBytes:   MinHeapFrameBytes,
		ComputeUnitPrice:   updatedComputeUnitPrice,
		LoadedAccountBytes: MaxLoadedAccountsDataSizeBytes,
	}

	if hasRequestedHeapSize {
		limits.UpdatedHeapBytes = requestedHeapSize
	}

	if hasComputeUnitLimit {
		limits.ComputeUnitLimit = min(updatedComputeUnitLimit, MaxComputeUnitLimit)
	} else {
		limits.ComputeUnitLimit = min(safemath.SaturatingMulU32(numNonComputeBudgetInstrs, defaultUnitsPerInstr), MaxComputeUnitLimit)
	}

	if hasUpdatedLoadedAccountsDataSizeLimit {
		limits.LoadedAccountBytes = min(updatedLoadedAccountsDataSizeLimit, MaxLoadedAccountsDataSizeBytes)
	}

	return limits, 0, nil
}

func ComputeBudgetExecute(execCtx *ExecutionCtx) error {
	klog.V(2).Infof("ComputeBudget program")
	return execCtx.ComputeMeter.Consume(CUComputeBudgetProgramDefaultComputeUnits)
}
