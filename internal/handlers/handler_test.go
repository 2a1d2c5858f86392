// handler_test.go provides shared test infrastructure for handler
// integration tests. Tests are skipped when PostgreSQL is unavailable.
package handlers

import (
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/raphaelbarrox/certificate-sub000/internal/cache"
	"github.com/raphaelbarrox/certificate-sub000/internal/database"
	"github.com/raphaelbarrox/certificate-sub000/internal/issuance"
	"github.com/raphaelbarrox/certificate-sub000/internal/middleware"
	"github.com/raphaelbarrox/certificate-sub000/internal/models"
	"github.com/raphaelbarrox/certificate-sub000/internal/render"
	"github.com/raphaelbarrox/certificate-sub000/internal/store"
)

const testJWTSecret = "handler-test-secret"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test PostgreSQL and runs migrations.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "certificates")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "certificates")
	dsn := "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testEnv holds all dependencies for handler integration tests. Object
// storage, email, and Valkey stay nil: handlers must work without them.
type testEnv struct {
	DB            *sql.DB
	TemplateStore *store.TemplateStore
	CertStore     *store.CertificateStore
	PDFCache      *cache.PDFCache
	Router        chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)

	renderer, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	templateStore := store.NewTemplateStore(db)
	certStore := store.NewCertificateStore(db)
	imageCache := cache.NewImageCache(nil, time.Minute, 50)
	pdfCache := cache.NewPDFCache(time.Minute, 50)
	qrCache := cache.NewQRCache(time.Minute, 50)
	verifyCache := cache.NewVerifyPageCache(nil, time.Minute)

	service := issuance.New(
		templateStore, certStore,
		imageCache, pdfCache, qrCache,
		nil, nil, verifyCache,
		"http://localhost:8080",
	)

	admin := NewAdmin(templateStore, certStore, imageCache, pdfCache, qrCache)
	public := NewPublic(renderer, service, templateStore, certStore, verifyCache, nil)

	r := chi.NewRouter()
	r.Get("/f/{slug}", public.FormPage)
	r.Post("/f/{slug}", public.SubmitForm)
	r.Get("/verify/{number}", public.VerifyPage)
	r.Get("/certificates/{number}/download", public.Download)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(testJWTSecret))
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", admin.TemplatesList)
			r.Post("/", admin.TemplateCreate)
			r.Get("/{id}", admin.TemplateGet)
			r.Put("/{id}", admin.TemplateUpdate)
			r.Delete("/{id}", admin.TemplateDeactivate)
			r.Get("/{id}/certificates", admin.TemplateCertificates)
		})
		r.Get("/certificates/{number}", admin.CertificateGet)
		r.Get("/cache/stats", admin.CacheStats)
	})

	return &testEnv{
		DB:            db,
		TemplateStore: templateStore,
		CertStore:     certStore,
		PDFCache:      pdfCache,
		Router:        r,
	}
}

// createTemplate stores a minimal valid template and cleans it up after
// the test.
func (env *testEnv) createTemplate(t *testing.T, slug string) *models.Template {
	t.Helper()

	tmpl := &models.Template{
		Name:            "Handler Test " + slug,
		Slug:            slug,
		Width:           1200,
		Height:          850,
		BackgroundColor: "#ffffff",
		Placeholders: []models.Placeholder{
			{ID: "full_name", Label: "Nome completo", Kind: models.PlaceholderText},
			{ID: "email", Label: "E-mail", Kind: models.PlaceholderText},
		},
		Elements: []models.Element{
			{
				ID: "el-name", Type: models.ElementText,
				X: 100, Y: 200, W: 1000, H: 100,
				Text: &models.TextAttrs{
					Content: "{{full_name}}", FontFamily: "helvetica",
					FontSize: 32, Color: "#111111", Align: models.AlignCenter,
				},
			},
		},
	}

	created, err := env.TemplateStore.Create(tmpl)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	t.Cleanup(func() {
		env.DB.Exec(`DELETE FROM certificates WHERE template_id = $1`, created.ID)
		env.DB.Exec(`DELETE FROM templates WHERE id = $1`, created.ID)
	})
	return created
}

// adminToken signs a platform JWT accepted by the test router.
func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
