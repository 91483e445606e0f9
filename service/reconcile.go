package service

import (
	"context"
	"time"

	"memchat/chat"
	"memchat/model"
)

const DefaultReconcileBatch = 100

type StaleConversations interface {
	StaleForMemory(ctx context.Context, limit int) ([]model.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]chat.Message, error)
}

type MemoryUpdater interface {
	UpdateMemory(ctx context.Context, conversationID string, messages []chat.Message, userID string) error
}

// MemoryReconciler rebuilds memories that a background write failed to keep
// up to date.
type MemoryReconciler struct {
	Conversations StaleConversations
	Memories      MemoryUpdater
	Batch         int
}

func (r *MemoryReconciler) Run(ctx context.Context) (int, error) {
	logger.Infof("[%s] Start scheduled task MemoryReconcile", "scheduled task")
	startTime := time.Now()

	batch := r.Batch
	if batch <= 0 {
		batch = DefaultReconcileBatch
	}
	stale, err := r.Conversations.StaleForMemory(ctx, batch)
	if err != nil {
		logger.Warnf("[%s] find stale conversations error, %s", "scheduled task", err)
		return 0, err
	}

	updated := 0
	for _, c := range stale {
		messages, err := r.Conversations.Messages(ctx, c.ID)
		if err != nil {
			logger.Warnf("[%s] load messages of %s error, %s", "scheduled task", c.ID, err)
			continue
		}
		if len(messages) == 0 {
			continue
		}
		if err := r.Memories.UpdateMemory(ctx, c.ID, messages, c.UserID); err != nil {
			logger.Warnf("[%s] update memory of %s error, %s", "scheduled task", c.ID, err)
			continue
		}
		updated++
	}

	logger.Infof("[%s] Finished scheduled task MemoryReconcile, %d/%d updated, cost %v", "scheduled task", updated, len(stale), time.Since(startTime))
	return updated, nil
}
