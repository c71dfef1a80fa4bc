// Package sqlstore keeps leases in a SQL Server table. The conditional write
// is a single UPDATE guarded on the stored last modified token.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

const (
	DriverName   = "sqlserver"
	DefaultTable = "crossdc_leases"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

type store struct {
	db    *sql.DB
	table string
	owned bool

	now func() time.Time
}

var _ types.LeaseStore = (*store)(nil)

func NewStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	db, err := sql.Open(DriverName, c.SQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql db: %w", err)
	}

	s, err := NewStoreWithDB(ctx, db, c.SQL.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.(*store).owned = true
	klogv2.Infof("sql lease store ready on table:%v", s.(*store).table)
	return s, nil
}

// NewStoreWithDB creates the lease table when missing. Close does not close db.
func NewStoreWithDB(ctx context.Context, db *sql.DB, table string) (types.LeaseStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid sql table name %q", table)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach sql server: %w", err)
	}

	s := &store{db: db, table: table, now: time.Now}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) ensureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`IF OBJECT_ID(N'dbo.%[1]s', N'U') IS NULL
    CREATE TABLE dbo.%[1]s (
      lease_key NVARCHAR(256) NOT NULL,
      lease_sub_key NVARCHAR(256) NOT NULL,
      lease_value NVARCHAR(1024) NOT NULL,
      update_ip NVARCHAR(64) NOT NULL,
      update_user NVARCHAR(256) NOT NULL,
      until_ns BIGINT NOT NULL,
      last_modified_ns BIGINT NOT NULL,
      created_at DATETIME2 NOT NULL,
      note NVARCHAR(1024) NOT NULL,
      CONSTRAINT PK_%[1]s PRIMARY KEY (lease_key, lease_sub_key)
    )`, s.table))
	if err != nil {
		return fmt.Errorf("failed to ensure lease table %s: %w", s.table, err)
	}
	return nil
}

func (s *store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		fmt.Sprintf(`SELECT lease_value, update_ip, update_user, until_ns, last_modified_ns
     FROM dbo.%s
     WHERE lease_key = @p1 AND lease_sub_key = @p2`, s.table),
		key,
		subKey,
	)

	record := &types.LeaseRecord{Key: key, SubKey: subKey}
	var until, lastModified int64
	if err := row.Scan(&record.Value, &record.UpdateIP, &record.UpdateUser, &until, &lastModified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
		}
		return nil, err
	}
	record.Until = time.Unix(0, until).UTC()
	record.LastModified = time.Unix(0, lastModified).UTC()
	return record, nil
}

func (s *store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	lastModified := leasedoc.NextLastModified(s.now(), time.Time{})
	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO dbo.%s (
      lease_key, lease_sub_key, lease_value, update_ip, update_user,
      until_ns, last_modified_ns, created_at, note
    ) VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9)`, s.table),
		record.Key,
		record.SubKey,
		record.Value,
		record.UpdateIP,
		record.UpdateUser,
		record.Until.UnixNano(),
		lastModified.UnixNano(),
		createdAt.UTC(),
		note,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
		}
		return err
	}
	return nil
}

func (s *store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	// the WHERE clause pins the stored token to expected, so this is strictly newer
	lastModified := leasedoc.NextLastModified(s.now(), expectedLastModified)
	result, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`UPDATE dbo.%s
     SET lease_value = @p1,
         update_ip = @p2,
         update_user = @p3,
         until_ns = @p4,
         last_modified_ns = @p5
     WHERE lease_key = @p6
       AND lease_sub_key = @p7
       AND last_modified_ns = @p8`, s.table),
		record.Value,
		record.UpdateIP,
		record.UpdateUser,
		until.UnixNano(),
		lastModified.UnixNano(),
		record.Key,
		record.SubKey,
		expectedLastModified.UnixNano(),
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)
	}
	return nil
}

func (s *store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var mssqlErr mssql.Error
	if !errors.As(err, &mssqlErr) {
		return false
	}
	return mssqlErr.Number == 2627 || mssqlErr.Number == 2601
}
