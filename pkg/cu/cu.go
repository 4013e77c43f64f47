package cu

import (
	"errors"

	"go.firedancer.io/litesvm/pkg/safemath"
	"k8s.io/klog/v2"
)

const DefaultComputeUnitLimit = 200000

var ErrComputeExceeded = errors.New("Compute exceeded")

// ComputeMeter tracks the compute units remaining in a transaction's budget.
type ComputeMeter struct {
	computeMeter    uint64
	startingBalance uint64
	exceeded        bool
	disable         bool
}

func NewComputeMeter(budget uint64) ComputeMeter {
	return ComputeMeter{computeMeter: budget, startingBalance: budget}
}

func NewComputeMeterDefault() ComputeMeter {
	return NewComputeMeter(DefaultComputeUnitLimit)
}

// Consume deducts cost from the meter. Once the budget is exhausted the meter
// stays at zero and every further call fails, unless the meter is disabled.
func (cm *ComputeMeter) Consume(cost uint64) error {
	cm.exceeded = cm.exceeded || cm.computeMeter < cost
	cm.computeMeter = safemath.SaturatingSubU64(cm.computeMeter, cost)

	if cm.exceeded {
		if cm.disable {
			klog.V(2).Infof("CU limit exceeded in Consume, but skipping")
		} else {
			return ErrComputeExceeded
		}
	}

	return nil
}

func (cm *ComputeMeter) Used() uint64 {
	return cm.startingBalance - cm.computeMeter
}

func (cm *ComputeMeter) Limit() uint64 {
	return cm.startingBalance
}

func (cm *ComputeMeter) Exceeded() bool {
	return cm.exceeded
}

func (cm *ComputeMeter) Remaining() uint64 {
	return cm.computeMeter
}

func (cm *ComputeMeter) Disable() {
	cm.disable = true
}
