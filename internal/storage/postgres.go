package storage

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/Messenger/internal/models"
)

// InitPostgres 初始化 PostgreSQL 连接
func InitPostgres(dsn string, maxIdleConns, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Printf("连接数据库失败: %v", err)
		return nil, err
	}

	// 获取底层 sql.DB 对象以设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("获取 sql.DB 失败: %v", err)
		return nil, err
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	// 自动迁移
	err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMember{}, // 中间表模型，确保部分唯一索引被创建
		&models.Message{},
		&models.MessageRead{},
	)
	if err != nil {
		log.Printf("模型迁移失败: %v", err)
		return nil, err
	}

	// 消息目标二选一，迁移层兜底（业务层在持久化前已校验）
	db.Exec(`ALTER TABLE messages DROP CONSTRAINT IF EXISTS chk_message_target;
		ALTER TABLE messages ADD CONSTRAINT chk_message_target
		CHECK ((receiver_id IS NULL) <> (group_id IS NULL))`)

	return db, nil
}

// BuildDSN 构建PostgreSQL DSN
func BuildDSN(host, port, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
}
