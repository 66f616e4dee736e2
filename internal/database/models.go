// Package database хранит аккаунты операторов, их storage state и историю
// запусков задач в PostgreSQL через GORM.
package database

import "time"

// Account - аккаунт платформы, заведённый оператором.
type Account struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	Name      string    `gorm:"type:varchar(128);not null"`
	Platform  string    `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// StorageState - последний снимок cookies и origin storage аккаунта.
type StorageState struct {
	AccountID string    `gorm:"primaryKey;type:varchar(64)"`
	State     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Статусы TaskRun.
const (
	RunRunning = "running"
	RunStopped = "stopped"
	RunFailed  = "failed"
)

// TaskRun - один запуск задачи. Конфигурация хранится как есть, в JSON.
type TaskRun struct {
	ID        uint       `gorm:"primaryKey"`
	AccountID string     `gorm:"type:varchar(64);index;not null"`
	Type      string     `gorm:"type:varchar(32);not null"`
	Config    string     `gorm:"type:text"`
	Status    string     `gorm:"type:varchar(16);not null;default:'running'"`
	Error     string     `gorm:"type:text"`
	StartedAt time.Time  `gorm:"autoCreateTime"`
	StoppedAt *time.Time
}
