package model

import (
	"fmt"

	"gorm.io/gorm"
)

const memorySearchIndex = "idx_memories_search_text"

func InstallDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Conversation{},
		&Message{},
		&Memory{}); err != nil {
		return err
	}

	// 只有 MySQL 支持全文索引，其他数据库在内存中排序
	if db.Dialector.Name() == "mysql" && !db.Migrator().HasIndex(&Memory{}, memorySearchIndex) {
		sql := fmt.Sprintf("CREATE FULLTEXT INDEX %s ON memories (search_text)", memorySearchIndex)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create full text index: %w", err)
		}
	}
	return nil
}
