package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestCollector_Refresh 测试从数据库刷新审批仪表盘
func TestCollector_Refresh(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:metrics_collector?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, db.Exec("CREATE TABLE documentapprovals (id TEXT PRIMARY KEY, document_id TEXT, step_key TEXT, status TEXT, deadline DATETIME)").Error)
	require.NoError(t, db.Exec("CREATE TABLE documents (id TEXT PRIMARY KEY, status TEXT)").Error)
	require.NoError(t, db.Exec("CREATE TABLE document_steps (id TEXT PRIMARY KEY, document_id TEXT, step_key TEXT, state TEXT)").Error)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// a4 属于已完成的步骤, a5 属于已通过的文档, 两者都不再计入
	require.NoError(t, db.Exec("INSERT INTO documentapprovals VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?), (?, ?, ?, ?, ?), (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)",
		"a1", "d1", "s1", "PENDING", now.Add(-time.Hour),
		"a2", "d2", "s1", "PENDING", now.Add(time.Hour),
		"a3", "d1", "s1", "APPROVED", now.Add(-time.Hour),
		"a4", "d2", "s0", "PENDING", now.Add(-time.Hour),
		"a5", "d3", "s1", "PENDING", now.Add(-time.Hour),
	).Error)
	require.NoError(t, db.Exec("INSERT INTO documents VALUES ('d1', 'IN_PROGRESS'), ('d2', 'IN_PROGRESS'), ('d3', 'APPROVED')").Error)
	require.NoError(t, db.Exec("INSERT INTO document_steps VALUES ('ds1', 'd1', 's1', 'ACTIVE'), ('ds2', 'd2', 's1', 'ACTIVE'), ('ds3', 'd2', 's0', 'COMPLETED'), ('ds4', 'd3', 's1', 'COMPLETED')").Error)

	c := NewCollector(db, time.Minute)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Refresh())

	assert.Equal(t, 2.0, testutil.ToFloat64(approvalsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(approvalsOverdue))
	assert.Equal(t, 2.0, testutil.ToFloat64(documentsByStatus.WithLabelValues("IN_PROGRESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(documentsByStatus.WithLabelValues("APPROVED")))
}

// TestRecordCounters 测试业务计数器
func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(approvalsTotal.WithLabelValues("sign"))
	RecordApproval("sign")
	assert.Equal(t, before+1, testutil.ToFloat64(approvalsTotal.WithLabelValues("sign")))

	before = testutil.ToFloat64(escalationsTotal)
	RecordEscalation()
	assert.Equal(t, before+1, testutil.ToFloat64(escalationsTotal))
}
