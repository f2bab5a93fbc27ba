package domain

import (
	"context"
	"time"
)

// RefreshCause описывает источник запроса на обновление кэша.
type RefreshCause string

const (
	// RefreshCauseManual — обновление запрошено пользователем.
	RefreshCauseManual RefreshCause = "manual"
	// RefreshCauseScheduled — периодическая фоновая синхронизация.
	RefreshCauseScheduled RefreshCause = "scheduled"
)

// RefreshJob содержит информацию о задаче обновления категории.
type RefreshJob struct {
	ID          string       `json:"job_id,omitempty"`
	Category    string       `json:"category"`
	Cause       RefreshCause `json:"cause"`
	RequestedAt time.Time    `json:"requested_at"`
}

// RefreshQueue описывает очередь задач на обновление кэша.
type RefreshQueue interface {
	Enqueue(ctx context.Context, job RefreshJob) error
	// Pop блокирующе читает следующую задачу; возвращает ошибку контекста
	// при отмене.
	Pop(ctx context.Context) (RefreshJob, error)
}
