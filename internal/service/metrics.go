package service

import "time"

// Recorder 业务指标
//
// *monitoring.Metrics 实现该接口。
type Recorder interface {
	RecordRun(status string, d time.Duration)
	SetGovernedMailboxes(n int)
	RecordCreation(kind string, ok bool)
	RecordRemoval(ok bool)
	RecordIssue()
	RecordNotification(ok bool)
}

// NopRecorder 不记录任何指标
type NopRecorder struct{}

func (NopRecorder) RecordRun(string, time.Duration) {}
func (NopRecorder) SetGovernedMailboxes(int)        {}
func (NopRecorder) RecordCreation(string, bool)     {}
func (NopRecorder) RecordRemoval(bool)              {}
func (NopRecorder) RecordIssue()                    {}
func (NopRecorder) RecordNotification(bool)         {}
