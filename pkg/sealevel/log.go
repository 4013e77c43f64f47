package sealevel

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

// Logger receives program log lines.
type Logger interface {
	Log(s string)
}

// LogRecorder collects log lines in order.
type LogRecorder struct {
	Logs []string
}

func (r *LogRecorder) Log(s string) {
	klog.V(3).Info(s)
	r.Logs = append(r.Logs, s)
}

func (execCtx *ExecutionCtx) logf(format string, args ...any) {
	if execCtx.Log == nil {
		return
	}
	execCtx.Log.Log(fmt.Sprintf(format, args...))
}

// Logf appends a program log line, prefixed like the runtime's own messages.
func (execCtx *ExecutionCtx) Logf(format string, args ...any) {
	execCtx.logf("Program log: "+format, args...)
}

func (execCtx *ExecutionCtx) logInvoke(programId solana.PublicKey, height uint64) {
	execCtx.logf("Program %s invoke [%d]", programId, height)
}

func (execCtx *ExecutionCtx) logResult(programId solana.PublicKey, err error) {
	if err != nil {
		execCtx.logf("Program %s failed: %s", programId, err)
	} else {
		execCtx.logf("Program %s success", programId)
	}
}
