package handlers

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Dzmitry-Rybak/natours/middleware"
	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const webhookSecret = "whsec_test"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	models.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testApp struct {
	router   *gin.Engine
	handler  *Handler
	tours    *fakeTours
	users    *fakeUsers
	reviews  *memStore[models.Review, *models.Review]
	bookings *fakeBookings
	mailer   *fakeMailer
	events   *services.LocalBus
	tokens   *utils.TokenManager
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zaptest.NewLogger(t)
	app := &testApp{
		tours:    &fakeTours{memStore: newMemStore[models.Tour]()},
		users:    newFakeUsers(),
		reviews:  newMemStore[models.Review](),
		bookings: &fakeBookings{newMemStore[models.Booking]()},
		mailer:   &fakeMailer{},
		events:   services.NewLocalBus(log),
		tokens:   utils.NewTokenManager("test-secret", time.Hour),
	}
	app.handler = New(Deps{
		Tours:     app.tours,
		Users:     app.users,
		Reviews:   app.reviews,
		Bookings:  app.bookings,
		Tokens:    app.tokens,
		Mailer:    app.mailer,
		Payments:  services.NewStripePayments("sk_test_123", webhookSecret),
		Events:    app.events,
		Images:    services.NewImageStore(t.TempDir()),
		Log:       log,
		CookieTTL: 24 * time.Hour,
	})
	require.NoError(t, app.events.SubscribeCheckoutCompleted(app.handler.CreateBookingCheckout))
	app.router = NewRouter(app.handler, RouterOptions{
		CORSOrigins:  []string{"http://localhost:4200"},
		RateLimitMax: 100,
		Limiter:      middleware.NewMemoryLimiter(100, time.Hour),
		Log:          log,
	})
	return app
}

func (a *testApp) addUser(t *testing.T, name, email string, role models.Role) (*models.User, string) {
	t.Helper()
	u := &models.User{Name: name, Email: email, Role: role}
	require.NoError(t, u.SetPassword("pass1234", "pass1234"))
	require.NoError(t, a.users.Create(t.Context(), u))
	token, err := a.tokens.GenerateJWT(u.ID.Hex())
	require.NoError(t, err)
	return u, token
}

func (a *testApp) addTour(t *testing.T, name string) *models.Tour {
	t.Helper()
	tour := &models.Tour{
		Name: name, Duration: 5, MaxGroupSize: 25, Difficulty: models.Easy,
		Price: 397, Summary: "Breathtaking hike", ImageCover: "tour-1-cover.jpg",
	}
	require.NoError(t, a.tours.Create(t.Context(), tour))
	return tour
}

func (a *testApp) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndNotFound(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, "Can't find /api/v1/nowhere on this server!", body["message"])
}

func TestErrorResponsesWithGzip(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{"/api/v1/nowhere", http.StatusNotFound, "Can't find /api/v1/nowhere on this server!"},
		{"/api/v1/tours/" + primitive.NewObjectID().Hex(), http.StatusNotFound, "No document found with that ID"},
		{"/api/v1/tours/not-an-id", http.StatusBadRequest, "Invalid _id: not-an-id"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", "gzip")
			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			raw, err := io.ReadAll(zr)
			require.NoError(t, err)

			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body), string(raw))
			assert.Equal(t, "fail", body["status"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestSignup(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/v1/users/signup", "", map[string]string{
		"name": "Leo Gillespie", "email": "Leo@Example.com", "role": "admin",
		"password": "pass1234", "passwordConfirm": "pass1234",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.NotEmpty(t, body["token"])
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "leo@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password")
	assert.Equal(t, []string{"leo@example.com"}, app.mailer.welcomes)

	cookie := w.Result().Cookies()[0]
	assert.Equal(t, "jwt", cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
}

func TestSignup_MismatchedPasswords(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodPost, "/api/v1/users/signup", "", map[string]string{
		"name": "Leo Gillespie", "email": "leo@example.com",
		"password": "pass1234", "passwordConfirm": "pass4321",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "Passwords are not the same!")
}

func TestSignup_WelcomeMailFailureIsIgnored(t *testing.T) {
	app := newTestApp(t)
	app.mailer.err = errors.New("smtp down")
	w := app.do(http.MethodPost, "/api/v1/users/signup", "", map[string]string{
		"name": "Leo Gillespie", "email": "leo@example.com",
		"password": "pass1234", "passwordConfirm": "pass1234",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)

	tests := []struct {
		name    string
		body    map[string]string
		status  int
		message string
	}{
		{"missing password", map[string]string{"email": "laura@example.com"}, http.StatusBadRequest, "Please provide email and password!"},
		{"unknown email", map[string]string{"email": "nobody@example.com", "password": "pass1234"}, http.StatusUnauthorized, "Incorrect email or password"},
		{"wrong password", map[string]string{"email": "laura@example.com", "password": "nope12345"}, http.StatusUnauthorized, "Incorrect email or password"},
		{"ok", map[string]string{"email": "laura@example.com", "password": "pass1234"}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(http.MethodPost, "/api/v1/users/login", "", tt.body)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
				return
			}
			assert.NotEmpty(t, body["token"])
		})
	}
}

func TestProtect(t *testing.T) {
	app := newTestApp(t)
	user, token := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)

	w := app.do(http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "You are not logged in! Please log in to get access.", decode(t, w)["message"])

	w = app.do(http.MethodGet, "/api/v1/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token. Please log in again!", decode(t, w)["message"])

	w = app.do(http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, user.ID.Hex(), data["id"])

	// The cookie works as well as the header.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	changed := time.Now().Add(time.Hour)
	user.PasswordChangedAt = &changed
	app.users.put(*user)
	w = app.do(http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "User recently changed password! Please log in again.", decode(t, w)["message"])

	_, err := app.users.Delete(t.Context(), user.ID)
	require.NoError(t, err)
	w = app.do(http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "The user belonging to this token does no longer exist.", decode(t, w)["message"])
}

func TestRestrictTo(t *testing.T) {
	app := newTestApp(t)
	_, userToken := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)
	_, adminToken := app.addUser(t, "Jonas Admin", "admin@example.com", models.RoleAdmin)

	tour := map[string]any{
		"name": "The Forest Hiker", "duration": 5, "maxGroupSize": 25, "difficulty": "easy",
		"price": 397, "summary": "Breathtaking hike", "imageCover": "tour-1-cover.jpg",
	}
	w := app.do(http.MethodPost, "/api/v1/tours", userToken, tour)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to perform this action", decode(t, w)["message"])

	w = app.do(http.MethodPost, "/api/v1/tours", adminToken, tour)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["data"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "the-forest-hiker", created["slug"])
	assert.Equal(t, 4.5, created["ratingsAverage"])

	w = app.do(http.MethodGet, "/api/v1/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = app.do(http.MethodPost, "/api/v1/users", adminToken, map[string]string{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "This route is not defined! Please use /signup instead", decode(t, w)["message"])
}

func TestTourFactoryRoutes(t *testing.T) {
	app := newTestApp(t)
	_, adminToken := app.addUser(t, "Jonas Admin", "admin@example.com", models.RoleAdmin)
	tour := app.addTour(t, "The Forest Hiker")
	path := "/api/v1/tours/" + tour.ID.Hex()

	w := app.do(http.MethodGet, "/api/v1/tours", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["results"])

	w = app.do(http.MethodGet, "/api/v1/tours/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid _id: not-an-id", decode(t, w)["message"])

	w = app.do(http.MethodGet, "/api/v1/tours/"+primitive.NewObjectID().Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No document found with that ID", decode(t, w)["message"])

	w = app.do(http.MethodPatch, path, adminToken, map[string]any{"price": 497})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)["data"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, 497.0, updated["price"])
	assert.Equal(t, "The Forest Hiker", updated["name"])

	w = app.do(http.MethodPatch, path, adminToken, map[string]any{"difficulty": "extreme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodDelete, path, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	w = app.do(http.MethodDelete, path, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTopToursAlias(t *testing.T) {
	r := gin.New()
	var query string
	r.GET("/top", AliasTopTours, func(c *gin.Context) { query = c.Request.URL.RawQuery })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/top?limit=50", nil))
	assert.Contains(t, query, "limit=5")
	assert.NotContains(t, query, "limit=50")
	assert.Contains(t, query, "sort=-ratingsAverage%2Cprice")
}

func TestTourAggregates(t *testing.T) {
	app := newTestApp(t)
	_, guideToken := app.addUser(t, "Kate Guide", "kate@example.com", models.RoleGuide)
	_, userToken := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)
	app.tours.stats = []repository.TourStats{{Difficulty: "EASY", NumTours: 4}}
	app.tours.plan = []repository.MonthlyPlan{{Month: 7, NumTourStarts: 3}}

	w := app.do(http.MethodGet, "/api/v1/tours/tour-stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["data"].(map[string]any)["stats"].([]any)
	assert.Equal(t, "EASY", stats[0].(map[string]any)["_id"])

	w = app.do(http.MethodGet, "/api/v1/tours/monthly-plan/2021", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(http.MethodGet, "/api/v1/tours/monthly-plan/2021", guideToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2021, app.tours.planYear)

	w = app.do(http.MethodGet, "/api/v1/tours/monthly-plan/next", guideToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeoRoutes(t *testing.T) {
	app := newTestApp(t)
	near, far := models.NewPoint(-118.11, 34.11), models.NewPoint(-80.18, 25.78)
	app.tours.within = []models.Tour{
		{ID: primitive.NewObjectID(), Name: "Far", StartLocation: &far},
		{ID: primitive.NewObjectID(), Name: "Near", StartLocation: &near},
	}
	app.tours.distances = []repository.TourDistance{{Name: "Near", Distance: 12.5}}

	w := app.do(http.MethodGet, "/api/v1/tours/tours-within/400/center/34.1,-118.1/unit/mi", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 2.0, body["results"])
	first := body["data"].(map[string]any)["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "Near", first["name"])

	w = app.do(http.MethodGet, "/api/v1/tours/tours-within/400/center/34.1/unit/mi", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please provide latitude and longitude in the format lat,lng.", decode(t, w)["message"])

	w = app.do(http.MethodGet, "/api/v1/tours/distances/34.1,-118.1/unit/km", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	distances := decode(t, w)["data"].(map[string]any)["data"].([]any)
	assert.Len(t, distances, 1)
}

func TestForgotAndResetPassword(t *testing.T) {
	app := newTestApp(t)
	user, _ := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)

	w := app.do(http.MethodPost, "/api/v1/users/forgotPassword", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(http.MethodPost, "/api/v1/users/forgotPassword", "", map[string]string{"email": "laura@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Token sent to email!", decode(t, w)["message"])
	require.Len(t, app.mailer.resetURLs, 1)
	resetURL := app.mailer.resetURLs[0]
	assert.True(t, strings.HasPrefix(resetURL, "http://example.com/api/v1/users/resetPassword/"))
	token := resetURL[strings.LastIndex(resetURL, "/")+1:]

	w = app.do(http.MethodPatch, "/api/v1/users/resetPassword/wrong", "", map[string]string{
		"password": "newpass123", "passwordConfirm": "newpass123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Token is invalid or has expired", decode(t, w)["message"])

	w = app.do(http.MethodPatch, "/api/v1/users/resetPassword/"+token, "", map[string]string{
		"password": "newpass123", "passwordConfirm": "newpass123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["token"])

	stored, err := app.users.FindByID(t.Context(), user.ID)
	require.NoError(t, err)
	assert.True(t, stored.CorrectPassword("newpass123"))
	assert.Empty(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)
}

func TestForgotPassword_MailFailureClearsToken(t *testing.T) {
	app := newTestApp(t)
	user, _ := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)
	app.mailer.err = errors.New("smtp down")

	w := app.do(http.MethodPost, "/api/v1/users/forgotPassword", "", map[string]string{"email": "laura@example.com"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "There was an error sending the email. Try again later!", decode(t, w)["message"])

	stored, err := app.users.FindByID(t.Context(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordResetToken)
}

func TestUpdateMyPassword(t *testing.T) {
	app := newTestApp(t)
	_, token := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)

	w := app.do(http.MethodPatch, "/api/v1/users/updateMyPassword", token, map[string]string{
		"passwordCurrent": "wrong1234", "password": "newpass123", "passwordConfirm": "newpass123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Your current password is wrong.", decode(t, w)["message"])

	w = app.do(http.MethodPatch, "/api/v1/users/updateMyPassword", token, map[string]string{
		"passwordCurrent": "pass1234", "password": "newpass123", "passwordConfirm": "newpass123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["token"])
}

func TestUpdateMeAndDeleteMe(t *testing.T) {
	app := newTestApp(t)
	user, token := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)

	w := app.do(http.MethodPatch, "/api/v1/users/updateMe", token, map[string]string{"password": "newpass123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This route is not for password updates. Please use /updateMyPassword.", decode(t, w)["message"])

	w = app.do(http.MethodPatch, "/api/v1/users/updateMe", token, map[string]string{
		"name": "Laura Smith", "role": "admin",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Laura Smith", updated["name"])
	assert.Equal(t, "user", updated["role"])

	w = app.do(http.MethodDelete, "/api/v1/users/deleteMe", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err := app.users.FindByID(t.Context(), user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReviews(t *testing.T) {
	app := newTestApp(t)
	tour := app.addTour(t, "The Forest Hiker")
	author, authorToken := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)
	victim, otherToken := app.addUser(t, "Max Smith", "max@example.com", models.RoleUser)
	_, adminToken := app.addUser(t, "Jonas Admin", "admin@example.com", models.RoleAdmin)

	w := app.do(http.MethodPost, "/api/v1/tours/"+tour.ID.Hex()+"/reviews", adminToken,
		map[string]any{"review": "Great tour", "rating": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(http.MethodPost, "/api/v1/tours/"+tour.ID.Hex()+"/reviews", authorToken,
		map[string]any{"review": "Great tour", "rating": 5, "user": primitive.NewObjectID().Hex()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["data"].(map[string]any)["data"].(map[string]any)
	reviewID := created["id"].(string)

	stored := app.reviews.all()
	require.Len(t, stored, 1)
	assert.Equal(t, tour.ID, stored[0].Tour)
	assert.Equal(t, author.ID, stored[0].User)

	w = app.do(http.MethodGet, "/api/v1/tours/"+tour.ID.Hex()+"/reviews", authorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["results"])

	w = app.do(http.MethodPatch, "/api/v1/reviews/"+reviewID, otherToken, map[string]any{"rating": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(http.MethodPatch, "/api/v1/reviews/"+reviewID, authorToken, map[string]any{"rating": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	otherTour := app.addTour(t, "The Sea Explorer")
	w = app.do(http.MethodPatch, "/api/v1/reviews/"+reviewID, authorToken, map[string]any{
		"review": "Still great",
		"user":   victim.ID.Hex(),
		"tour":   otherTour.ID.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored = app.reviews.all()
	require.Len(t, stored, 1)
	assert.Equal(t, author.ID, stored[0].User)
	assert.Equal(t, tour.ID, stored[0].Tour)
	assert.Equal(t, "Still great", stored[0].Review)
	assert.Equal(t, 4.0, stored[0].Rating)

	w = app.do(http.MethodDelete, "/api/v1/reviews/"+reviewID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWebhookCheckoutCreatesBooking(t *testing.T) {
	app := newTestApp(t)
	tour := app.addTour(t, "The Forest Hiker")
	user, token := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)
	results := app.events.Results(1)

	payload := fmt.Sprintf(`{
		"id": "evt_1", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1", "object": "checkout.session",
			"client_reference_id": %q, "customer_email": "laura@example.com",
			"amount_total": 39700
		}}
	}`, tour.ID.Hex())
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload), Secret: webhookSecret, Timestamp: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/webhook-checkout", bytes.NewReader(signed.Payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := <-results
	assert.Equal(t, "CREATED", res.Status)

	bookings, err := app.bookings.FindByUser(t.Context(), user.ID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, 397.0, bookings[0].Price)
	assert.Equal(t, tour.ID, bookings[0].Tour)

	w = app.do(http.MethodGet, "/api/v1/bookings/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["results"])
}

func TestWebhookCheckout_BadSignature(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/webhook-checkout", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Webhook error"))
}

func TestCheckoutSession_PaymentsDisabled(t *testing.T) {
	app := newTestApp(t)
	app.handler.payments = services.NoPayments{}
	tour := app.addTour(t, "The Forest Hiker")
	_, token := app.addUser(t, "Laura Wilson", "laura@example.com", models.RoleUser)

	w := app.do(http.MethodGet, "/api/v1/bookings/checkout-session/"+tour.ID.Hex(), token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestErrorHandler_Production(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(zaptest.NewLogger(t), true))
	r.GET("/boom", func(c *gin.Context) { fail(c, errors.New("driver exploded")) })
	r.GET("/dup", func(c *gin.Context) {
		fail(c, utils.BadRequest("Duplicate field value: leo@example.com. Please use another value!"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Something went very wrong!"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dup", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"status":"fail","message":"Duplicate field value: leo@example.com. Please use another value!"}`, w.Body.String())
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{&models.ValidationError{Messages: []string{"A tour must have a name"}}, http.StatusBadRequest},
		{services.ErrNotAnImage, http.StatusBadRequest},
		{io.EOF, http.StatusBadRequest},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, toAppError(tt.err).StatusCode, tt.err.Error())
	}
	assert.Equal(t, "Invalid input data. A tour must have a name",
		toAppError(&models.ValidationError{Messages: []string{"A tour must have a name"}}).Message)
}
