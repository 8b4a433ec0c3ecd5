package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/database"
	"github.com/localnerve/reportdesk/internal/logging"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Table+":"+string(ev.EventType))
	}
	return out
}

// setupTestStore creates an in-memory SQLite database for testing
func setupTestStore(t *testing.T) (*store.GormStore, *gorm.DB, *recorder) {
	t.Helper()
	db, err := database.Connect(&config.Config{DBType: "sqlite-purego", DBDatabase: ":memory:"}, logging.Nop())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	rec := &recorder{}
	return store.NewGormStore(db, rec, logging.Nop()), db, rec
}

func seedSite(t *testing.T, db *gorm.DB, name string) models.Site {
	t.Helper()
	s := models.Site{Name: name, DisplayName: name + " plant", IsActive: true}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func seedUser(t *testing.T, db *gorm.DB, email string, role models.Role) models.User {
	t.Helper()
	u := models.User{Email: email, Role: string(role)}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func TestCreateUserWithSites(t *testing.T) {
	s, db, rec := setupTestStore(t)
	ctx := context.Background()
	north := seedSite(t, db, "north")
	south := seedSite(t, db, "south")

	res, err := s.CreateUserWithSites(ctx, store.CreateUserInput{
		Email:    " reviewer@example.com ",
		Password: "secret1",
		Role:     "Reviewer",
		SiteIDs:  []string{north.ID, south.ID, north.ID},
	})
	require.NoError(t, err)
	require.NoError(t, res.Err(store.ProcCreateUserWithSites, "Failed to create user"))
	assert.Equal(t, 2, res.SitesAssigned.Int())

	user, err := s.GetUser(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "reviewer@example.com", user.Email)
	assert.Equal(t, models.RoleReviewer, user.NormalizedRole())
	assert.ElementsMatch(t, []string{north.ID, south.ID}, user.SiteIDs())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))

	assert.Equal(t, []string{"users:INSERT", "user_sites:INSERT", "user_sites:INSERT"}, rec.tables())
}

func TestCreateUserWithSitesFailures(t *testing.T) {
	s, db, _ := setupTestStore(t)
	ctx := context.Background()
	seedUser(t, db, "taken@example.com", models.RoleUser)

	cases := []struct {
		in   store.CreateUserInput
		want string
	}{
		{store.CreateUserInput{Password: "secret1", Role: "user"}, "Email is required"},
		{store.CreateUserInput{Email: "a@b.c", Role: "user"}, "Password is required"},
		{store.CreateUserInput{Email: "a@b.c", Password: "123", Role: "user"}, "Password must be at least 6 characters long"},
		{store.CreateUserInput{Email: "a@b.c", Password: "secret1", Role: "owner"}, "Invalid role: owner"},
		{store.CreateUserInput{Email: "TAKEN@example.com", Password: "secret1", Role: "user"}, "User with this email already exists"},
		{store.CreateUserInput{Email: "a@b.c", Password: "secret1", Role: "user", SiteIDs: []string{"nope"}}, "One or more sites do not exist"},
	}

	for _, tc := range cases {
		res, err := s.CreateUserWithSites(ctx, tc.in)
		require.NoError(t, err)
		assert.False(t, res.Success)

		rpcErr := res.Err(store.ProcCreateUserWithSites, "Failed to create user")
		var target *store.RPCError
		require.True(t, errors.As(rpcErr, &target))
		assert.Equal(t, tc.want, target.Message)
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpdateUserRoleAndSitesReplacesAssignments(t *testing.T) {
	s, db, rec := setupTestStore(t)
	ctx := context.Background()
	north := seedSite(t, db, "north")
	south := seedSite(t, db, "south")

	created, err := s.CreateUserWithSites(ctx, store.CreateUserInput{
		Email: "u@example.com", Password: "secret1", Role: "user", SiteIDs: []string{north.ID},
	})
	require.NoError(t, err)

	res, err := s.UpdateUserRoleAndSites(ctx, store.UpdateUserInput{
		UserID: created.UserID, Role: "admin", SiteIDs: []string{south.ID},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.SitesAssigned.Int())

	user, err := s.GetUser(ctx, created.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.NormalizedRole())
	assert.Equal(t, []string{south.ID}, user.SiteIDs())
	assert.Contains(t, rec.tables(), "user_sites:DELETE")

	res, err = s.UpdateUserRoleAndSites(ctx, store.UpdateUserInput{UserID: "missing", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, "User not found", res.Error)
}

func TestRemoveSiteAssignment(t *testing.T) {
	s, db, _ := setupTestStore(t)
	ctx := context.Background()
	north := seedSite(t, db, "north")

	created, err := s.CreateUserWithSites(ctx, store.CreateUserInput{
		Email: "u@example.com", Password: "secret1", Role: "user", SiteIDs: []string{north.ID},
	})
	require.NoError(t, err)

	res, err := s.RemoveSiteAssignment(ctx, created.UserID, north.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = s.RemoveSiteAssignment(ctx, created.UserID, north.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Site assignment not found", res.Error)
}

func TestDeleteUserCompletely(t *testing.T) {
	s, db, rec := setupTestStore(t)
	ctx := context.Background()
	north := seedSite(t, db, "north")
	uploader := seedUser(t, db, "up@example.com", models.RoleUser)
	reviewer := seedUser(t, db, "rev@example.com", models.RoleReviewer)

	own := models.Report{Filename: "a.pdf", UploadedBy: uploader.ID, SiteID: &north.ID}
	require.NoError(t, s.CreateReport(ctx, &own, []string{"Air"}))
	other := models.Report{Filename: "b.pdf", UploadedBy: reviewer.ID, SiteID: &north.ID, ReviewedBy: &uploader.ID}
	require.NoError(t, s.CreateReport(ctx, &other, nil))

	before := len(rec.tables())
	res, err := s.DeleteUserCompletely(ctx, uploader.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// the report goes out before its domains and keeps the columns that scope it
	assert.Equal(t, []string{"reports:DELETE", "domains:DELETE", "users:DELETE"}, rec.tables()[before:])
	gone, err := realtime.Decode[models.Report](rec.events[before])
	require.NoError(t, err)
	require.NotNil(t, gone.Old)
	assert.Equal(t, own.ID, gone.Old.ID)
	assert.Equal(t, uploader.ID, gone.Old.UploadedBy)
	require.NotNil(t, gone.Old.SiteID)
	assert.Equal(t, north.ID, *gone.Old.SiteID)
	domain, err := realtime.Decode[models.Domain](rec.events[before+1])
	require.NoError(t, err)
	require.NotNil(t, domain.Old)
	assert.Equal(t, own.ID, domain.Old.ReportID)

	_, err = s.GetUser(ctx, uploader.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetReport(ctx, own.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	kept, err := s.GetReport(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.ReviewedBy)

	var domains int64
	db.Model(&models.Domain{}).Count(&domains)
	assert.Zero(t, domains)

	res, err = s.DeleteUserCompletely(ctx, uploader.ID)
	require.NoError(t, err)
	assert.Equal(t, "User not found", res.Error)
}

func TestCreateSite(t *testing.T) {
	s, _, rec := setupTestStore(t)
	ctx := context.Background()

	res, err := s.CreateSite(ctx, store.CreateSiteInput{Name: "east", DisplayName: "East Works"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.SiteID)

	res, err = s.CreateSite(ctx, store.CreateSiteInput{Name: "east"})
	require.NoError(t, err)
	assert.Equal(t, "Site with this name already exists", res.Error)

	res, err = s.CreateSite(ctx, store.CreateSiteInput{})
	require.NoError(t, err)
	assert.Equal(t, "Site name is required", res.Error)

	sites, err := s.ListSites(ctx, true)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "East Works", sites[0].DisplayName)
	assert.Equal(t, []string{"sites:INSERT"}, rec.tables())
}

func TestListSitesActiveOnlyOrderedByName(t *testing.T) {
	s, db, _ := setupTestStore(t)
	seedSite(t, db, "charlie")
	seedSite(t, db, "alpha")
	inactive := seedSite(t, db, "bravo")
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)

	active, err := s.ListSites(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "charlie"}, []string{active[0].Name, active[1].Name})

	all, err := s.ListSites(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListReportsPaginationAndScope(t *testing.T) {
	s, db, _ := setupTestStore(t)
	ctx := context.Background()
	north := seedSite(t, db, "north")
	south := seedSite(t, db, "south")
	user := seedUser(t, db, "u@example.com", models.RoleUser)
	other := seedUser(t, db, "o@example.com", models.RoleUser)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		r := models.Report{
			Filename:   fmt.Sprintf("r%02d.pdf", i),
			UploadedBy: user.ID,
			SiteID:     &north.ID,
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.CreateReport(ctx, &r, []string{"Water", "Air"}))
	}
	southReport := models.Report{Filename: "south.pdf", UploadedBy: other.ID, SiteID: &south.ID, UploadedAt: base}
	require.NoError(t, s.CreateReport(ctx, &southReport, nil))

	page, err := s.ListReports(ctx, store.ReportQuery{UploadedBy: user.ID, Offset: 20, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(23), page.Total)
	require.Len(t, page.Reports, 3)
	assert.Equal(t, "r02.pdf", page.Reports[0].Filename)
	assert.Equal(t, "r00.pdf", page.Reports[2].Filename)

	first, err := s.ListReports(ctx, store.ReportQuery{UploadedBy: user.ID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "r22.pdf", first.Reports[0].Filename)
	require.Len(t, first.Reports[0].Domains, 2)
	assert.Equal(t, "Air", first.Reports[0].Domains[0].DomainName)
	require.NotNil(t, first.Reports[0].Site)
	assert.Equal(t, "north plant", first.Reports[0].Site.DisplayName)
	require.NotNil(t, first.Reports[0].UploadedByUser)
	assert.Equal(t, "u@example.com", first.Reports[0].UploadedByUser.Email)

	scoped, err := s.ListReports(ctx, store.ReportQuery{SiteIDs: []string{south.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), scoped.Total)
	assert.Equal(t, south.ID, *scoped.Reports[0].SiteID)

	none, err := s.ListReports(ctx, store.ReportQuery{SiteIDs: []string{}})
	require.NoError(t, err)
	assert.Zero(t, none.Total)
	assert.Empty(t, none.Reports)
}

func TestReviewUpdates(t *testing.T) {
	s, db, rec := setupTestStore(t)
	ctx := context.Background()
	user := seedUser(t, db, "u@example.com", models.RoleUser)
	reviewer := seedUser(t, db, "r@example.com", models.RoleReviewer)

	report := models.Report{Filename: "a.pdf", UploadedBy: user.ID, Status: models.ReportProcessing}
	require.NoError(t, s.CreateReport(ctx, &report, []string{"Air", "Water"}))

	reason := "Figures missing"
	now := time.Now().UTC()
	require.NoError(t, s.UpdateDomains(ctx, store.DomainFilter{ID: report.Domains[0].ID}, store.DomainReview{
		Status: models.DomainRejected, RejectionReason: &reason, ReviewedBy: reviewer.ID, ReviewedAt: now,
	}))

	domains, err := s.ListDomains(ctx, report.ID)
	require.NoError(t, err)
	byName := map[string]models.Domain{}
	for _, d := range domains {
		byName[d.DomainName] = d
	}
	assert.Equal(t, models.DomainRejected, byName["Air"].Status)
	require.NotNil(t, byName["Air"].RejectionReason)
	assert.Equal(t, reason, *byName["Air"].RejectionReason)
	assert.Equal(t, models.DomainPending, byName["Water"].Status)

	require.NoError(t, s.UpdateDomains(ctx, store.DomainFilter{ReportID: report.ID}, store.DomainReview{
		Status: models.DomainApproved, ReviewedBy: reviewer.ID, ReviewedAt: now,
	}))
	require.NoError(t, s.UpdateReport(ctx, report.ID, store.ReportReview{
		Status: models.ReportApproved, ReviewedBy: reviewer.ID, ReviewedAt: now,
	}))

	got, err := s.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportApproved, got.Status)
	require.NotNil(t, got.ReviewedByUser)
	assert.Equal(t, "r@example.com", got.ReviewedByUser.Email)

	assert.ErrorIs(t, s.UpdateDomains(ctx, store.DomainFilter{ID: "missing"}, store.DomainReview{Status: models.DomainApproved}), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateReport(ctx, "missing", store.ReportReview{Status: models.ReportApproved}), store.ErrNotFound)
	assert.Error(t, s.UpdateDomains(ctx, store.DomainFilter{}, store.DomainReview{}))

	assert.Contains(t, rec.tables(), "domains:UPDATE")
	assert.Contains(t, rec.tables(), "reports:UPDATE")
}

func TestPasswordCredentials(t *testing.T) {
	s, db, _ := setupTestStore(t)
	ctx := context.Background()
	user := seedUser(t, db, "Mixed@Example.com", models.RoleUser)

	found, err := s.GetUserByEmail(ctx, "mixed@example.com ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, s.SetPasswordHash(ctx, user.AuthUserID, "hash"))
	assert.ErrorIs(t, s.SetPasswordHash(ctx, "missing", "hash"), store.ErrNotFound)

	_, err = s.GetUserByAuthID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, s.Ping(ctx))
}
