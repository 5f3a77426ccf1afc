package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const jwtCookie = "jwt"

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// createSendToken issues a JWT in the body and as an httpOnly cookie.
func (h *Handler) createSendToken(c *gin.Context, user *models.User, status int, withUser bool) {
	token, err := h.tokens.GenerateJWT(user.ID.Hex())
	if err != nil {
		fail(c, err)
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     jwtCookie,
		Value:    token,
		Path:     "/",
		Expires:  h.now().Add(h.cookieTTL),
		HttpOnly: true,
		Secure:   requestProto(c) == "https",
		SameSite: http.SameSiteLaxMode,
	})

	body := gin.H{"token": token}
	if withUser {
		body["data"] = gin.H{"user": user}
	}
	success(c, status, body)
}

func (h *Handler) Signup(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "users-signup")
	defer span.End()

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	// Role is never taken from the request.
	user := &models.User{Name: req.Name, Email: req.Email}
	if err := user.SetPassword(req.Password, req.PasswordConfirm); err != nil {
		fail(c, err)
		return
	}
	if err := h.users.Create(ctx, user); err != nil {
		fail(c, err)
		return
	}
	span.SetAttributes(attribute.String("user.id", user.ID.Hex()))

	if err := h.mailer.SendWelcome(ctx, user, baseURL(c)+"/me"); err != nil {
		h.log.Warn("welcome email failed", zap.String("email", user.Email), zap.Error(err))
	}
	h.createSendToken(c, user, http.StatusCreated, true)
}

func (h *Handler) Login(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "users-login")
	defer span.End()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		fail(c, utils.BadRequest("Please provide email and password!"))
		return
	}

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		fail(c, err)
		return
	}
	if user == nil || !user.CorrectPassword(req.Password) {
		fail(c, utils.Unauthorized("Incorrect email or password"))
		return
	}
	h.createSendToken(c, user, http.StatusOK, false)
}

func (h *Handler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     jwtCookie,
		Value:    "loggedout",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	success(c, http.StatusOK, gin.H{"message": "Log out successfully"})
}

func tokenFromRequest(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if cookie, err := c.Cookie(jwtCookie); err == nil && cookie != "loggedout" {
		return cookie
	}
	return ""
}

// Protect lets the request through only with a valid token of a user that
// still exists and has not changed the password since.
func (h *Handler) Protect(c *gin.Context) {
	token := tokenFromRequest(c)
	if token == "" {
		fail(c, utils.Unauthorized("You are not logged in! Please log in to get access."))
		return
	}
	claims, err := h.tokens.ParseJWT(token)
	if err != nil {
		fail(c, err)
		return
	}
	id, err := primitive.ObjectIDFromHex(claims.ID)
	if err != nil {
		fail(c, utils.Unauthorized("Invalid token. Please log in again!"))
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		fail(c, utils.Unauthorized("The user belonging to this token does no longer exist."))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if claims.IssuedAt != nil && user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		fail(c, utils.Unauthorized("User recently changed password! Please log in again."))
		return
	}

	c.Set(userKey, user)
	c.Next()
}

func (h *Handler) RestrictTo(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.HasRole(roles...) {
			fail(c, utils.Forbidden("You do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "users-forgot-password")
	defer span.End()

	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	user, err := h.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		fail(c, utils.NotFound("There is no user with email address."))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	resetToken, err := user.CreatePasswordResetToken()
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.users.Save(ctx, user, false); err != nil {
		fail(c, err)
		return
	}

	resetURL := baseURL(c) + "/api/v1/users/resetPassword/" + resetToken
	if err := h.mailer.SendPasswordReset(ctx, user, resetURL); err != nil {
		user.ClearPasswordReset()
		if saveErr := h.users.Save(ctx, user, false); saveErr != nil {
			h.log.Error("failed to clear reset token", zap.Error(saveErr))
		}
		fail(c, utils.WrapAppError(http.StatusInternalServerError, "There was an error sending the email. Try again later!", err))
		return
	}
	success(c, http.StatusOK, gin.H{"message": "Token sent to email!"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "users-reset-password")
	defer span.End()

	user, err := h.users.FindByResetToken(ctx, c.Param("token"))
	if errors.Is(err, repository.ErrNotFound) {
		fail(c, utils.BadRequest("Token is invalid or has expired"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if err := user.SetPassword(req.Password, req.PasswordConfirm); err != nil {
		fail(c, err)
		return
	}
	user.ClearPasswordReset()
	if err := h.users.Save(ctx, user, true); err != nil {
		fail(c, err)
		return
	}
	h.createSendToken(c, user, http.StatusOK, false)
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "users-update-password")
	defer span.End()

	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	user, err := h.users.FindByID(ctx, currentUser(c).ID)
	if err != nil {
		fail(c, notFound(err))
		return
	}
	if !user.CorrectPassword(req.PasswordCurrent) {
		fail(c, utils.Unauthorized("Your current password is wrong."))
		return
	}
	if err := user.SetPassword(req.Password, req.PasswordConfirm); err != nil {
		fail(c, err)
		return
	}
	if err := h.users.Save(ctx, user, true); err != nil {
		fail(c, err)
		return
	}
	h.createSendToken(c, user, http.StatusOK, false)
}
