package daemon

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/discovery"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(logging.DefaultConfig(), &bytes.Buffer{})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Scanning.ProbeMethod = discovery.MethodTCP
	cfg.Scanning.Workers = 2
	cfg.Daemon.PIDFile = filepath.Join(t.TempDir(), "run", "netsweep.pid")
	cfg.Daemon.ShutdownTimeout = 5 * time.Second
	return cfg
}

type nopStore struct{}

func (nopStore) CreateScan(context.Context, *db.Scan) error        { return nil }
func (nopStore) FailScan(context.Context, uuid.UUID, string) error { return nil }
func (nopStore) PersistSweep(context.Context, uuid.UUID, string, []*db.Observation) (*db.SweepRecord, error) {
	return &db.SweepRecord{Devices: []*db.Device{}}, nil
}

func TestBuildStack(t *testing.T) {
	cfg := testConfig(t)
	stack, err := BuildStack(cfg, nopStore{}, metrics.NewPrometheusMetrics(), nil)
	require.NoError(t, err)

	assert.Equal(t, cfg.Scanning.Workers, stack.Pool.Size())
	assert.Equal(t, cfg.Scanning.MaxSockets, stack.Budget.Available())
	_, active := stack.Orchestrator.Active()
	assert.False(t, active)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, stack.Close(ctx))
}

func TestBuildStackRejectsUnknownProbe(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scanning.ProbeMethod = "carrier-pigeon"
	_, err := BuildStack(cfg, nopStore{}, metrics.NewPrometheusMetrics(), nil)
	assert.Error(t, err)
}

func TestAssemble(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("UPDATE scans SET status").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectClose()

	key := "ns_" + "abcdefghijklmnopqrstuvwxyz234567"
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Schedule.Enabled = true
	cfg.Schedule.Ranges = []string{"10.0.0.0/30"}
	cfg.API.APIKeyHashes = []string{string(hash)}

	d := New(cfg, testLogger())
	require.NoError(t, d.Assemble(context.Background(), db.NewFromSQLX(sqlx.NewDb(conn, "postgres"))))

	jobs := d.scheduler.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, DefaultScheduleName, jobs[0].Name)

	rec := httptest.NewRecorder()
	d.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	d.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan/start/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	d.dumpStatus()
	d.shutdown()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssembleRejectsBadSchedule(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("UPDATE scans SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	cfg := testConfig(t)
	cfg.Schedule.Enabled = true
	cfg.Schedule.Cron = "not a cron"
	cfg.Schedule.Ranges = []string{"10.0.0.0/30"}

	d := New(cfg, testLogger())
	err = d.Assemble(context.Background(), db.NewFromSQLX(sqlx.NewDb(conn, "postgres")))
	assert.Error(t, err)
}

func TestPIDFileHandling(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg, testLogger())

	require.NoError(t, d.createPIDFile())
	data, err := os.ReadFile(cfg.Daemon.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// Our own PID is alive, so a second start must refuse.
	err = New(cfg, testLogger()).createPIDFile()
	assert.ErrorContains(t, err, "already running")

	d.removePIDFile()
	_, err = os.Stat(cfg.Daemon.PIDFile)
	assert.True(t, os.IsNotExist(err))
}

func TestStalePIDFileIsReplaced(t *testing.T) {
	for name, content := range map[string]string{
		"dead process": "999999999",
		"garbage":      "not-a-pid",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Daemon.PIDFile), DefaultDirPermissions))
			require.NoError(t, os.WriteFile(cfg.Daemon.PIDFile, []byte(content), DefaultFilePermissions))

			d := New(cfg, testLogger())
			require.NoError(t, d.createPIDFile())
			data, err := os.ReadFile(cfg.Daemon.PIDFile)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
		})
	}
}

func TestNoPIDFileConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.PIDFile = ""
	d := New(cfg, testLogger())
	assert.NoError(t, d.createPIDFile())
	d.removePIDFile()
}
