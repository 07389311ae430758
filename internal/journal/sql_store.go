package journal

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gelato-runner/deploy/migrations"
	xerrors "gelato-runner/internal/errors"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect 选择 SQL 方言。
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// SQLConfig 描述 SQL 流水存储的连接参数。
type SQLConfig struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore 使用 MySQL 或 SQLite 记录交易流水，两种方言共用同一套语句。
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL 连接数据库并执行迁移。
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "流水存储 DSN 不能为空")
	}
	var driver string
	switch cfg.Dialect {
	case DialectMySQL:
		driver = "mysql"
	case DialectSQLite:
		driver = "sqlite"
		if dir := filepath.Dir(cfg.DSN); dir != "" && !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建流水目录失败")
			}
		}
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的流水方言 %q", cfg.Dialect))
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开流水数据库失败")
	}
	if cfg.Dialect == DialectSQLite {
		// SQLite 只允许单写者
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(positiveOr(cfg.MaxOpenConns, 10))
		db.SetMaxIdleConns(positiveOr(cfg.MaxIdleConns, 5))
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		} else {
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接流水数据库")
	}
	if cfg.Dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=3000;`); err != nil {
			db.Close()
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "设置 SQLite busy_timeout 失败")
		}
	}

	store := &SQLStore{db: db, dialect: cfg.Dialect}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Append 插入新的流水记录。
func (s *SQLStore) Append(ctx context.Context, record *Record) error {
	if err := validate(record); err != nil {
		return err
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const stmt = `INSERT INTO tx_journal
        (id, run_id, command, network, sender, target, method, tx_hash, status, block_number, gas_used, error_code, last_error, detail, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.RunID,
		record.Command,
		record.Network,
		record.From,
		record.To,
		record.Method,
		record.TxHash,
		string(record.Status),
		int64(record.BlockNumber),
		int64(record.GasUsed),
		record.ErrorCode,
		record.LastError,
		record.Detail,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if s.isDuplicate(err) {
			return ErrRecordConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入流水失败")
	}
	return nil
}

func (s *SQLStore) isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if stdErrors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return s.dialect == DialectSQLite && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Resolve 更新流水状态。
func (s *SQLStore) Resolve(ctx context.Context, id string, outcome Outcome) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	applyOutcome(current, outcome)

	const stmt = `UPDATE tx_journal SET status = ?, tx_hash = ?, block_number = ?, gas_used = ?, error_code = ?, last_error = ?, updated_at = ?
        WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		string(current.Status),
		current.TxHash,
		int64(current.BlockNumber),
		int64(current.GasUsed),
		current.ErrorCode,
		current.LastError,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新流水失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

const selectColumns = `SELECT id, run_id, command, network, sender, target, method, tx_hash, status, block_number, gas_used,
        error_code, last_error, detail, created_at, updated_at FROM tx_journal`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var status string
	var block, gas int64
	var lastError, detail sql.NullString
	if err := row.Scan(
		&record.ID,
		&record.RunID,
		&record.Command,
		&record.Network,
		&record.From,
		&record.To,
		&record.Method,
		&record.TxHash,
		&status,
		&block,
		&gas,
		&record.ErrorCode,
		&lastError,
		&detail,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = Status(status)
	record.BlockNumber = uint64(block)
	record.GasUsed = uint64(gas)
	record.LastError = lastError.String
	record.Detail = detail.String
	return &record, nil
}

// Get 查询指定流水。
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流水失败")
	}
	return record, nil
}

// List 按条件列出流水。
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()

	var (
		clauses []string
		args    []any
	)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if opts.Command != "" {
		clauses = append(clauses, "command = ?")
		args = append(args, opts.Command)
	}
	if opts.Network != "" {
		clauses = append(clauses, "network = ?")
		args = append(args, opts.Network)
	}
	if opts.UpdatedGTE > 0 {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}

	query := selectColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if opts.Order == SortOldestFirst {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流水列表失败")
	}
	defer rows.Close()

	records := make([]*Record, 0, opts.Limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析流水失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流水失败")
	}
	return records, nil
}

// Close 关闭数据库连接。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type migrationFile struct {
	version    string
	name       string
	statements []string
}

func (s *SQLStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 schema_migrations 表失败")
	}

	applied := make(map[string]struct{})
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 schema_migrations 失败")
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 schema_migrations 失败")
		}
		applied[version] = struct{}{}
	}
	rows.Close()

	files, err := loadMigrationFiles(string(s.dialect))
	if err != nil {
		return err
	}
	for _, migration := range files {
		if _, ok := applied[migration.version]; ok {
			continue
		}
		if err := s.applyMigration(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) applyMigration(ctx context.Context, migration migrationFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启迁移事务失败")
	}
	for _, stmt := range migration.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("执行迁移 %s 失败", migration.name))
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, migration.version, time.Now().Unix()); err != nil {
		tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录迁移版本失败")
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交迁移事务失败")
	}
	return nil
}

func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrations.Files, dir)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移目录失败")
	}
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(migrations.Files, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件失败")
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		files = append(files, migrationFile{
			version:    parseMigrationVersion(entry.Name()),
			name:       entry.Name(),
			statements: statements,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func splitSQLStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) string {
	if idx := strings.IndexRune(name, '_'); idx > 0 {
		return name[:idx]
	}
	return strings.TrimSuffix(name, ".sql")
}

var _ Store = (*SQLStore)(nil)
