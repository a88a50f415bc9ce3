package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type MockRenderer struct{}

func (MockRenderer) Render(ctx context.Context, inv *models.Invoice) (billing.Document, error) {
	return billing.Document{Content: []byte("%PDF-" + inv.Number), ContentType: "application/pdf"}, nil
}

type MockPaymentProvider struct {
	CreatePaymentIntentFunc func(ctx context.Context, inv *models.Invoice) (*billing.ProviderIntent, error)
	ParseWebhookFunc        func(payload []byte, signature string) (*billing.PaymentNotification, error)
}

func (m *MockPaymentProvider) CreatePaymentIntent(ctx context.Context, inv *models.Invoice) (*billing.ProviderIntent, error) {
	return m.CreatePaymentIntentFunc(ctx, inv)
}

func (m *MockPaymentProvider) ParseWebhook(payload []byte, signature string) (*billing.PaymentNotification, error) {
	return m.ParseWebhookFunc(payload, signature)
}

type testEnv struct {
	db     *gorm.DB
	svc    *billing.Service
	owner  models.User
	client models.Client
}

func newTestEnv(t *testing.T, provider billing.PaymentProvider) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	deps := billing.Deps{
		Renderer: MockRenderer{},
		Logger:   zerolog.Nop(),
		Clock:    func() time.Time { return testNow },
	}
	if provider != nil {
		deps.Provider = provider
	}
	env := &testEnv{db: db, svc: billing.NewService(db, deps)}

	env.owner = models.User{Email: "owner@example.com", Name: "Owner", PasswordHash: "x", Role: "user", IsActive: true}
	require.NoError(t, db.Create(&env.owner).Error)
	env.client = models.Client{UserID: env.owner.ID, Name: "Acme", Email: "billing@acme.test", PaymentTermsDays: 30, IsActive: true}
	require.NoError(t, db.Create(&env.client).Error)
	return env
}

func (e *testEnv) entry(t *testing.T, date, hours, rate string) models.TimeEntry {
	t.Helper()
	d, err := time.Parse(dateLayout, date)
	require.NoError(t, err)
	te := models.TimeEntry{
		UserID:      e.owner.ID,
		ClientID:    e.client.ID,
		Date:        d,
		Hours:       decimal.RequireFromString(hours),
		HourlyRate:  decimal.RequireFromString(rate),
		IsBillable:  true,
		Description: "work",
	}
	require.NoError(t, e.db.Create(&te).Error)
	return te
}

func (e *testEnv) draft(t *testing.T) *models.Invoice {
	t.Helper()
	e.entry(t, "2024-01-10", "2", "50")
	inv, err := e.svc.CreateInvoiceFromEntries(context.Background(), e.owner.ID, billing.CreateInvoiceRequest{
		ClientID:  e.client.ID,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

// asOwner stands in for JwtAuthMiddleware.
func asOwner(id uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", id)
		c.Set("role", role)
		c.Next()
	}
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func amountOf(t *testing.T, v interface{}) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "amount %v is not a string", v)
	return decimal.RequireFromString(s)
}
