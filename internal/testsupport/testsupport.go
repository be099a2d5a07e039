package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"funnelscope/internal"
	"funnelscope/internal/config"
	"funnelscope/internal/database"
	"funnelscope/internal/funnel"
	"funnelscope/internal/sessions"
)

// TestAPIKey is the collection API key wired into apps built with
// CreateTestApp.
const TestAPIKey = "test-api-key"

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDSNCache = make(map[string]string)
var testDBCacheMu sync.Mutex

// allModels returns all funnelscope models for migration
func allModels() []any {
	return []any{
		&sessions.Session{},
		&sessions.StageEvent{},
	}
}

// SetupTestDB creates a test database with all funnelscope models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	// Check cache first
	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Apply SQLite pragmas
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	// Auto-migrate models
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	// Cache the database
	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDSNCache[rootName] = dsn
	testDBCacheMu.Unlock()

	// Register cleanup
	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		delete(testDSNCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager wraps the shared in-memory test database in a
// DBManager for code that takes the manager rather than a bare handle.
func SetupTestDBManager(t *testing.T) *database.DBManager {
	t.Helper()

	// Ensure the database exists and is migrated before attaching to it.
	SetupTestDB(t)

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	dsn := testDSNCache[rootName]
	testDBCacheMu.Unlock()

	cfg := &config.Config{
		AppName:      "funnelscope",
		Environment:  config.Test,
		DatabaseType: config.SQLiteDatabase,
		DatabaseName: dsn,
	}
	dm := database.NewDBManager(cfg, GetLogger())
	if err := dm.Init(); err != nil {
		t.Fatalf("testsupport: failed to init db manager: %v", err)
	}
	return dm
}

// CreateTestApp creates a test fiber app with all routes mounted against
// the shared test database.
func CreateTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db := SetupTestDB(t)
	cfg := &config.Config{
		AppName:     "funnelscope",
		Environment: config.Test,
		APIKey:      TestAPIKey,
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	internal.MountRoutes(app, cfg, GetLogger(), db, nil)
	return app
}

// GetLogger returns a logger that discards everything; tests assert on
// behavior, not log output.
func GetLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestSession inserts a session with the given attributes and
// returns it.
func CreateTestSession(t *testing.T, db *gorm.DB, id, device, source string) sessions.Session {
	t.Helper()

	s := sessions.Session{
		ID:        id,
		Device:    device,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("testsupport: failed to create test session: %v", err)
	}
	return s
}

// CreateTestJourney inserts a session plus one event per stage from
// Homepage up to and including reach. StageNone inserts a session with no
// events.
func CreateTestJourney(t *testing.T, db *gorm.DB, id, device, source string, reach funnel.Stage) {
	t.Helper()

	CreateTestSession(t, db, id, device, source)
	now := time.Now().UTC()
	for s := funnel.StageHomepage; s <= reach; s++ {
		ev := sessions.StageEvent{
			SessionID: id,
			Stage:     s.Rank(),
			Timestamp: now.Add(time.Duration(s.Rank()) * time.Minute),
		}
		if err := db.Create(&ev).Error; err != nil {
			t.Fatalf("testsupport: failed to create test stage event: %v", err)
		}
	}
}

// CreateTestPurchase inserts a purchase event carrying order metadata for
// an existing session.
func CreateTestPurchase(t *testing.T, db *gorm.DB, sessionID string, orderTotal float64) {
	t.Helper()

	ev := sessions.StageEvent{
		SessionID: sessionID,
		Stage:     funnel.StagePurchase.Rank(),
		Timestamp: time.Now().UTC(),
		Metadata:  fmt.Sprintf(`{"order_id":"order-%s","order_total":%.2f}`, sessionID, orderTotal),
	}
	if err := db.Create(&ev).Error; err != nil {
		t.Fatalf("testsupport: failed to create test purchase: %v", err)
	}
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			db.Exec("DELETE FROM " + name)
		}
	}
}
