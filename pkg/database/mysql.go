package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"memchat-go/pkg/log"
)

// ErrMissingDSN 表示未配置 MySQL 连接串，进程无法提供持久化服务。
var ErrMissingDSN = errors.New("mysql dsn is not configured")

// Store 是进程级的 MySQL 连接访问器。
// 连接在首次使用时懒加载建立；冷启动期间的并发首次调用
// 通过 singleflight 共享同一次拨号，不会产生重复连接。
type Store struct {
	dsn string

	mu    sync.RWMutex
	db    *gorm.DB
	group singleflight.Group
}

// NewStore 创建一个新的 Store。此时不建立连接。
func NewStore(dsn string) *Store {
	return &Store{dsn: dsn}
}

// Conn 返回缓存的连接；连接尚未建立时触发一次拨号。
// 同一进程内重复调用是幂等的。
func (s *Store) Conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	v, err, _ := s.group.Do("connect", func() (interface{}, error) {
		// double-check：前一个 in-flight 成功后，后续排队者直接复用
		s.mu.RLock()
		cached := s.db
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		return s.dial()
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB), nil
}

func (s *Store) dial() (*gorm.DB, error) {
	if s.dsn == "" {
		return nil, ErrMissingDSN
	}

	db, err := gorm.Open(mysql.Open(s.dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Error("连接 MySQL 失败", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 连接池上限收紧到 10，与无服务器托管下的配额对齐
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	log.Info("MySQL database connected successfully")
	return db, nil
}
