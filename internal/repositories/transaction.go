package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store 同一个数据库句柄(或事务)上的全部仓储
type Store struct {
	Files    FileRepository
	Sessions UploadSessionRepository
	Users    UserRepository
	Shares   ShareRepository
	Folders  FolderRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		Files:    NewFileRepository(db),
		Sessions: NewUploadSessionRepository(db),
		Users:    NewUserRepository(db),
		Shares:   NewShareRepository(db),
		Folders:  NewFolderRepository(db),
	}
}

// TransactionManager 在一个事务内执行 fn，fn 返回错误时回滚
// fn 内不允许发起远端调用
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(tx *Store) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

func (tm *transactionManager) WithTransaction(ctx context.Context, fn func(tx *Store) error) error {
	tx := tm.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(NewStore(tx)); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
