package journal

import (
	"context"
	"fmt"
	"time"

	"gelato-runner/internal/config"
	xerrors "gelato-runner/internal/errors"
)

// Open 根据配置选择流水后端。
func Open(ctx context.Context, cfg config.JournalConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQL(ctx, SQLConfig{Dialect: DialectSQLite, DSN: cfg.DSN})
	case "mysql":
		return OpenSQL(ctx, SQLConfig{
			Dialect:         DialectMySQL,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知流水后端 %q", cfg.Driver),
			xerrors.WithHint("journal.driver 可选 memory、sqlite、mysql"))
	}
}
