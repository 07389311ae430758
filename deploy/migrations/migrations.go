package migrations

import "embed"

// Files 暴露交易流水表的 SQL 迁移文件，按方言分目录存放。
//
//go:embed mysql/*.sql sqlite/*.sql
var Files embed.FS
