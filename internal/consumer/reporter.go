package consumer

import (
	"go.uber.org/zap"
)

// ErrorReporter 协作方异常上报。循环自身从不因协作方故障崩溃，
// 故障统一走这里，便于后续接入告警通道。
type ErrorReporter interface {
	Report(err error, fields ...zap.Field)
}

// LogReporter 基于 zap 的异常上报实现
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter 创建日志上报器
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report 记录协作方故障
func (r *LogReporter) Report(err error, fields ...zap.Field) {
	r.logger.Error("Collaborator failure", append(fields, zap.Error(err))...)
}
