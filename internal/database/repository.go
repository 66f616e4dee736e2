package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// UpsertAccount создаёт аккаунт или обновляет имя и платформу.
func (r *AccountRepository) UpsertAccount(ctx context.Context, a *Account) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "platform", "updated_at"}),
	}).Create(a).Error
}

func (r *AccountRepository) GetAccount(ctx context.Context, id string) (*Account, error) {
	var a Account
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := r.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) DeleteAccount(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&StorageState{}, "account_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Account{}, "id = ?", id).Error
	})
}

// SaveStorageState перезаписывает снимок сессии аккаунта.
func (r *AccountRepository) SaveStorageState(ctx context.Context, accountID, state string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&StorageState{AccountID: accountID, State: state}).Error
}

// LoadStorageState возвращает пустую строку, если снимка ещё нет.
func (r *AccountRepository) LoadStorageState(ctx context.Context, accountID string) (string, error) {
	var s StorageState
	err := r.db.WithContext(ctx).First(&s, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.State, nil
}

type TaskRunRepository struct {
	db *gorm.DB
}

func NewTaskRunRepository(db *gorm.DB) *TaskRunRepository {
	return &TaskRunRepository{db: db}
}

func (r *TaskRunRepository) StartRun(ctx context.Context, accountID, taskType, config string) (uint, error) {
	run := TaskRun{AccountID: accountID, Type: taskType, Config: config, Status: RunRunning}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, err
	}
	return run.ID, nil
}

// FinishRun закрывает последний незавершённый запуск задачи аккаунта.
func (r *TaskRunRepository) FinishRun(ctx context.Context, accountID, taskType string, runErr error) error {
	status, msg := RunStopped, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	now := time.Now()
	return r.db.WithContext(ctx).Model(&TaskRun{}).
		Where("account_id = ? AND type = ? AND status = ?", accountID, taskType, RunRunning).
		Updates(map[string]any{
			"status":     status,
			"error":      msg,
			"stopped_at": &now,
		}).Error
}

// AbortRun закрывает запуск по id, если задача не стартовала.
func (r *TaskRunRepository) AbortRun(ctx context.Context, id uint, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	now := time.Now()
	return r.db.WithContext(ctx).Model(&TaskRun{}).
		Where("id = ? AND status = ?", id, RunRunning).
		Updates(map[string]any{
			"status":     RunFailed,
			"error":      msg,
			"stopped_at": &now,
		}).Error
}

func (r *TaskRunRepository) ListRuns(ctx context.Context, accountID string, limit int) ([]TaskRun, error) {
	var runs []TaskRun
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
