package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userImageDir = "users"

func (h *Handler) GetAllUsers() gin.HandlerFunc {
	return GetAll("users", h.users.Find)
}

func (h *Handler) GetUser() gin.HandlerFunc {
	return GetOne("users", h.users.FindByID)
}

func (h *Handler) UpdateUser() gin.HandlerFunc {
	return UpdateOne("users", h.users.Update)
}

func (h *Handler) DeleteUser() gin.HandlerFunc {
	return DeleteOne("users", h.users.Delete)
}

// CreateUser exists so the route answers with a pointer to /signup.
func (h *Handler) CreateUser(c *gin.Context) {
	fail(c, utils.NewAppError(http.StatusInternalServerError, "This route is not defined! Please use /signup instead"))
}

// GetMe serves the logged-in user through GetUser.
func (h *Handler) GetMe(c *gin.Context) {
	c.Params = append(c.Params, gin.Param{Key: "id", Value: currentUser(c).ID.Hex()})
	c.Next()
}

// UpdateMe changes name, email and photo of the logged-in user. The body
// may be JSON or multipart with an optional "photo" file.
func (h *Handler) UpdateMe(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "users-update-me")
	defer span.End()

	me := currentUser(c)
	body, file, err := readUserBody(c)
	if err != nil {
		fail(c, err)
		return
	}
	if _, ok := body["password"]; ok {
		fail(c, utils.BadRequest("This route is not for password updates. Please use /updateMyPassword."))
		return
	}
	if _, ok := body["passwordConfirm"]; ok {
		fail(c, utils.BadRequest("This route is not for password updates. Please use /updateMyPassword."))
		return
	}

	filtered := utils.FilterBody(body, "name", "email")
	if file != nil {
		if !services.IsImage(file.Header.Get("Content-Type")) {
			fail(c, services.ErrNotAnImage)
			return
		}
		filename := fmt.Sprintf("user-%s-%d.jpeg", me.ID.Hex(), h.now().Unix())
		job := services.ImageJob{
			Open:     func() (io.ReadCloser, error) { return file.Open() },
			Filename: filename,
			Width:    services.UserPhotoSize,
			Height:   services.UserPhotoSize,
		}
		if err := h.images.Save(userImageDir, job); err != nil {
			fail(c, err)
			return
		}
		filtered["photo"] = filename
	}

	patch, err := json.Marshal(filtered)
	if err != nil {
		fail(c, err)
		return
	}
	user, err := h.users.Update(ctx, me.ID, patch)
	if err != nil {
		fail(c, notFound(err))
		return
	}
	success(c, http.StatusOK, gin.H{"data": gin.H{"user": user}})
}

func readUserBody(c *gin.Context) (map[string]any, *multipart.FileHeader, error) {
	body := map[string]any{}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, nil, err
		}
		return body, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, utils.WrapAppError(http.StatusBadRequest, "Invalid multipart body", err)
	}
	for k, v := range form.Value {
		if len(v) > 0 {
			body[k] = v[0]
		}
	}
	if files := form.File["photo"]; len(files) > 0 {
		return body, files[0], nil
	}
	return body, nil, nil
}

// DeleteMe deactivates the account instead of removing it.
func (h *Handler) DeleteMe(c *gin.Context) {
	me := currentUser(c)
	if err := h.users.Deactivate(c.Request.Context(), me.ID); err != nil {
		fail(c, notFound(err))
		return
	}
	h.log.Info("user deactivated", zap.String("user", me.ID.Hex()))
	noContent(c)
}

// requireSelf is true when the user may only act on their own documents.
func requireSelf(u *models.User) bool {
	return u != nil && u.Role == models.RoleUser
}
