package logging

import (
	"context"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/engine/executor"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// --- Run Listener ---

type LoggingRunListener struct{}

func NewLoggingRunListener() executor.RunListener {
	return &LoggingRunListener{}
}

func (l *LoggingRunListener) BeforeRun(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun) {
	logger.Infof("RunListener: BeforeRun - Plan: %s, Target: %s, Window: %s, RunID: %s",
		p.PlanID, p.Target, p.Window, run.ID)
}

func (l *LoggingRunListener) AfterRun(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun) {
	logger.Infof("RunListener: AfterRun - Plan: %s, Status: %s, Succeeded: %d/%d",
		p.PlanID, run.Status, run.CountByStatus(model.ChunkStatusSucceeded), len(run.ChunkStates))
}

var _ executor.RunListener = (*LoggingRunListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() executor.ChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, p *model.BackfillPlan, chunk model.Chunk, attempt int) {
	logger.Debugf("ChunkListener: BeforeChunk - Plan: %s, Chunk: %d %s, Attempt: %d",
		p.PlanID, chunk.Index, chunk.Window(), attempt)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, p *model.BackfillPlan, chunk model.Chunk, err error) {
	if err != nil {
		logger.Warnf("ChunkListener: AfterChunk - Plan: %s, Chunk: %d, Error: %v", p.PlanID, chunk.Index, err)
		return
	}
	logger.Debugf("ChunkListener: AfterChunk - Plan: %s, Chunk: %d, OK", p.PlanID, chunk.Index)
}

var _ executor.ChunkListener = (*LoggingChunkListener)(nil)
