package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/lib/registrar"
	"github.com/classwatch/classwatch/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type cannedTransport struct {
	calls  int
	result registrar.SearchResult
	status int
}

func (t *cannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	body, _ := json.Marshal(t.result)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

type sentLink struct {
	recipient string
	url       string
}

type linkSender struct {
	links []sentLink
}

func (f *linkSender) SendClassAlert(ctx context.Context, recipient string, alert *models.ClassAlert) (string, error) {
	return "msg-id", nil
}

func (f *linkSender) SendMagicLink(ctx context.Context, recipient, magicLinkURL string) (string, error) {
	f.links = append(f.links, sentLink{recipient, magicLinkURL})
	return "msg-id", nil
}

type svcFixture struct {
	db        *gorm.DB
	svc       *Service
	transport *cannedTransport
	sender    *linkSender
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	log := zap.NewNop()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "classwatch_test.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.ClassStatus{},
		&models.SectionStatus{},
		&models.AlertLog{},
	))

	cfg := &config.Config{ServerDNS: "https://classwatch.test"}
	cfg.Registrar.BaseURL = "https://registrar.test/api/classes"
	cfg.Registrar.Term = "2280"
	cfg.Registrar.TimeoutSecs = 5

	transport := &cannedTransport{}
	sender := &linkSender{}

	lc := fxtest.NewLifecycle(t)
	client := registrar.NewClient(lc, log, cfg, transport)
	svc := NewService(lc, cfg, log, db, client, senders.Registry{"email": sender})

	return &svcFixture{db, svc, transport, sender}
}

func (f *svcFixture) seedUser(t *testing.T, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, EmailVerified: true}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func section(catalogNbr, classNbr, sectionLabel string, cap, tot int) registrar.ClassRecord {
	return registrar.ClassRecord{
		Subject:         "COSC",
		CatalogNbr:      catalogNbr,
		CourseTitle:     "Operating Systems",
		InstructorName:  "L. Torvalds",
		EnrollmentCap:   cap,
		EnrollmentTotal: tot,
		ClassNbr:        classNbr,
		ClassSection:    sectionLabel,
		ScheduleDayTime: "MoWe 10:00AM-11:30AM",
		BuildingDescr:   "Science Bldg 101",
	}
}

func TestCreateSubscriptionCacheMissFetchesLive(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	f.transport.result = registrar.SearchResult{Data: []registrar.ClassRecord{
		section("4330", "10001", "01", 30, 28),
		section("4330", "10002", "02", 30, 30),
	}, Total: 2}

	sub, err := f.svc.CreateSubscription(context.Background(), user.ID, "cosc", " 4330 ", "caller title")
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.calls)

	// Fetched title wins, subject is normalized.
	assert.Equal(t, "COSC", sub.Subject)
	assert.Equal(t, "4330", sub.CatalogNbr)
	assert.Equal(t, "Operating Systems", sub.Title)
	assert.True(t, sub.Active)

	status := &models.ClassStatus{}
	require.NoError(t, f.db.Where("subject = ? AND catalog_nbr = ?", "COSC", "4330").First(status).Error)
	assert.True(t, status.IsOpen)
	assert.Equal(t, 2, status.SeatsAvailable)
	assert.Equal(t, "Operating Systems", status.CourseTitle.String)

	var sectionCount int64
	require.NoError(t, f.db.Model(&models.SectionStatus{}).Count(&sectionCount).Error)
	assert.Equal(t, int64(2), sectionCount)
}

func TestCreateSubscriptionCacheHitSkipsUpstream(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	require.NoError(t, f.db.Create(&models.ClassStatus{
		Subject: "COSC", CatalogNbr: "4330",
		CourseTitle: models.NullString("Operating Systems"),
		IsOpen:      false, LastChecked: time.Now().UTC(),
	}).Error)

	sub, err := f.svc.CreateSubscription(context.Background(), user.ID, "COSC", "4330", "caller title")
	require.NoError(t, err)
	assert.Equal(t, 0, f.transport.calls)
	assert.Equal(t, "Operating Systems", sub.Title)
}

func TestCreateSubscriptionUnknownClass(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	f.transport.result = registrar.SearchResult{}

	_, err := f.svc.CreateSubscription(context.Background(), user.ID, "COSC", "9999", "")
	require.ErrorIs(t, err, ErrClassNotFound)

	// Nothing persisted on rejection.
	var subCount, statusCount int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&subCount).Error)
	require.NoError(t, f.db.Model(&models.ClassStatus{}).Count(&statusCount).Error)
	assert.Zero(t, subCount)
	assert.Zero(t, statusCount)
}

func TestCreateSubscriptionDuplicate(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	require.NoError(t, f.db.Create(&models.Subscription{
		UserID: user.ID, Subject: "COSC", CatalogNbr: "4330", Active: true,
	}).Error)

	_, err := f.svc.CreateSubscription(context.Background(), user.ID, "COSC", "4330", "")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestCreateSubscriptionReactivatesInactive(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	require.NoError(t, f.db.Create(&models.Subscription{
		UserID: user.ID, Subject: "COSC", CatalogNbr: "4330", Title: "Operating Systems", Active: false,
	}).Error)

	sub, err := f.svc.CreateSubscription(context.Background(), user.ID, "COSC", "4330", "")
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, 0, f.transport.calls)

	var count int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDeleteSubscriptionChecksOwnership(t *testing.T) {
	f := newSvcFixture(t)
	owner := f.seedUser(t, "owner@example.edu")
	other := f.seedUser(t, "other@example.edu")
	sub := &models.Subscription{UserID: owner.ID, Subject: "COSC", CatalogNbr: "4330", Active: true}
	require.NoError(t, f.db.Create(sub).Error)

	err := f.svc.DeleteSubscription(context.Background(), other.ID, sub.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	require.NoError(t, f.svc.DeleteSubscription(context.Background(), owner.ID, sub.ID))

	// Soft delete: the row survives, deactivated.
	stored := &models.Subscription{}
	require.NoError(t, f.db.First(stored, sub.ID).Error)
	assert.False(t, stored.Active)
}

func TestUnsubscribeAll(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	require.NoError(t, f.db.Create(&models.Subscription{UserID: user.ID, Subject: "COSC", CatalogNbr: "4330", Active: true}).Error)
	require.NoError(t, f.db.Create(&models.Subscription{UserID: user.ID, Subject: "MATH", CatalogNbr: "3331", Active: true}).Error)

	require.NoError(t, f.svc.UnsubscribeAll(context.Background(), "Student@Example.edu"))

	var active int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Where("active = ?", true).Count(&active).Error)
	assert.Zero(t, active)

	// Unknown emails are a silent no-op so the endpoint leaks nothing.
	assert.NoError(t, f.svc.UnsubscribeAll(context.Background(), "nobody@example.edu"))
}

func TestListSubscriptionsMergesStatus(t *testing.T) {
	f := newSvcFixture(t)
	user := f.seedUser(t, "student@example.edu")
	require.NoError(t, f.db.Create(&models.Subscription{UserID: user.ID, Subject: "COSC", CatalogNbr: "4330", Active: true}).Error)
	require.NoError(t, f.db.Create(&models.Subscription{UserID: user.ID, Subject: "MATH", CatalogNbr: "3331", Active: false}).Error)
	require.NoError(t, f.db.Create(&models.ClassStatus{
		Subject: "COSC", CatalogNbr: "4330",
		IsOpen: true, SeatsAvailable: 2, LastChecked: time.Now().UTC(),
	}).Error)

	subs, err := f.svc.ListSubscriptions(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "COSC", subs[0].Subscription.Subject)
	assert.True(t, subs[0].IsOpen)
	assert.Equal(t, 2, subs[0].SeatsAvailable)
	require.NotNil(t, subs[0].LastChecked)
}

func TestCachedSectionsReadsWithoutUpstream(t *testing.T) {
	f := newSvcFixture(t)
	now := time.Now().UTC()
	for _, sec := range []models.SectionStatus{
		{ClassNbr: "10002", Subject: "COSC", CatalogNbr: "4330", Section: "02", LastChecked: now},
		{ClassNbr: "10001", Subject: "COSC", CatalogNbr: "4330", Section: "01", LastChecked: now},
	} {
		require.NoError(t, f.db.Create(&sec).Error)
	}

	secs, err := f.svc.CachedSections(context.Background(), "cosc", "4330")
	require.NoError(t, err)
	require.Len(t, secs, 2)
	assert.Equal(t, "01", secs[0].Section)
	assert.Equal(t, "02", secs[1].Section)
	assert.Equal(t, 0, f.transport.calls)
}

func TestRefreshSectionsReportsStatusChange(t *testing.T) {
	f := newSvcFixture(t)
	require.NoError(t, f.db.Create(&models.ClassStatus{
		Subject: "COSC", CatalogNbr: "4330",
		IsOpen: false, LastChecked: time.Now().UTC(),
	}).Error)
	f.transport.result = registrar.SearchResult{Data: []registrar.ClassRecord{
		section("4330", "10001", "01", 30, 28),
	}, Total: 1}

	refresh, err := f.svc.RefreshSections(context.Background(), "COSC", "4330")
	require.NoError(t, err)
	assert.True(t, refresh.NowOpen)
	require.NotNil(t, refresh.PreviousOpen)
	assert.False(t, *refresh.PreviousOpen)
	assert.True(t, refresh.StatusChanged)
	require.Len(t, refresh.Sections, 1)

	// First-ever fetch has no prior status to compare against.
	refresh, err = f.svc.RefreshSections(context.Background(), "MATH", "3331")
	require.NoError(t, err)
	assert.Nil(t, refresh.PreviousOpen)
	assert.False(t, refresh.StatusChanged)
}

func TestLoginAndVerifyFlow(t *testing.T) {
	f := newSvcFixture(t)

	user, err := f.svc.LoginUser(context.Background(), " Student@Example.EDU ")
	require.NoError(t, err)
	assert.Equal(t, "student@example.edu", user.Email)
	assert.False(t, user.EmailVerified)

	require.Len(t, f.sender.links, 1)
	assert.Equal(t, "student@example.edu", f.sender.links[0].recipient)
	assert.Contains(t, f.sender.links[0].url, "https://classwatch.test/verify?token=")

	stored := &models.User{}
	require.NoError(t, f.db.First(stored, user.ID).Error)
	require.True(t, stored.VerifyToken.Valid)
	token := stored.VerifyToken.String

	verified, err := f.svc.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
	assert.True(t, verified.EmailVerified)
	assert.False(t, verified.VerifyToken.Valid)

	// Tokens are one-shot.
	_, err = f.svc.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginRotatesTokenForExistingUser(t *testing.T) {
	f := newSvcFixture(t)

	first, err := f.svc.LoginUser(context.Background(), "student@example.edu")
	require.NoError(t, err)

	stored := &models.User{}
	require.NoError(t, f.db.First(stored, first.ID).Error)
	firstToken := stored.VerifyToken.String

	second, err := f.svc.LoginUser(context.Background(), "student@example.edu")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, f.db.First(stored, first.ID).Error)
	assert.NotEqual(t, firstToken, stored.VerifyToken.String)

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	f := newSvcFixture(t)

	for _, email := range []string{"", "not-an-email", "missing@domain", "a b@example.edu"} {
		_, err := f.svc.LoginUser(context.Background(), email)
		assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
}

func TestVerifyTokenRejectsUnknown(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.svc.VerifyToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.VerifyToken(context.Background(), "bogus-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
