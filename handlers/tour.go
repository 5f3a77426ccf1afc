package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tourImageDir  = "tours"
	maxTourImages = 3
)

func (h *Handler) GetAllTours() gin.HandlerFunc {
	return GetAll("tours", h.tours.Find)
}

func (h *Handler) GetTour() gin.HandlerFunc {
	return GetOne("tours", h.tours.FindWithReviews)
}

func (h *Handler) CreateTour() gin.HandlerFunc {
	return CreateOne("tours", h.tours.Create)
}

func (h *Handler) UpdateTour() gin.HandlerFunc {
	return UpdateOne("tours", h.tours.Update)
}

func (h *Handler) DeleteTour() gin.HandlerFunc {
	return DeleteOne("tours", h.tours.Delete)
}

// AliasTopTours presets the query for /top-5-cheap.
func AliasTopTours(c *gin.Context) {
	q := c.Request.URL.Query()
	utils.AliasTopTours(q)
	c.Request.URL.RawQuery = q.Encode()
	c.Next()
}

func (h *Handler) GetTourStats(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "tours-stats")
	defer span.End()

	stats, err := h.tours.Stats(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"data": gin.H{"stats": stats}})
}

func (h *Handler) GetMonthlyPlan(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "tours-monthly-plan")
	defer span.End()

	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 || year > 9999 {
		fail(c, utils.BadRequest("Invalid year: "+c.Param("year")))
		return
	}
	span.SetAttributes(attribute.Int("year", year))

	plan, err := h.tours.MonthlyPlan(ctx, year)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"data": gin.H{"plan": plan}})
}

// GetToursWithin lists tours starting inside the given distance of a
// point, nearest first.
func (h *Handler) GetToursWithin(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "tours-within")
	defer span.End()

	lat, lng, err := services.ParseLatLng(c.Param("latlng"))
	if err != nil {
		fail(c, err)
		return
	}
	distance, err := strconv.ParseFloat(c.Param("distance"), 64)
	if err != nil || distance < 0 {
		fail(c, utils.BadRequest("Invalid distance: "+c.Param("distance")))
		return
	}
	unit := c.Param("unit")
	radius := services.RadiusFromDistance(distance, unit)

	tours, err := h.tours.Within(ctx, lng, lat, radius)
	if err != nil {
		fail(c, err)
		return
	}
	services.SortByDistance(tours, lat, lng)
	success(c, http.StatusOK, gin.H{
		"results": len(tours),
		"data":    gin.H{"data": tours},
	})
}

func (h *Handler) GetDistances(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "tours-distances")
	defer span.End()

	lat, lng, err := services.ParseLatLng(c.Param("latlng"))
	if err != nil {
		fail(c, err)
		return
	}
	distances, err := h.tours.Distances(ctx, lng, lat, services.DistanceMultiplier(c.Param("unit")))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"data": gin.H{"data": distances}})
}

// TourImages turns a multipart tour update into a JSON patch. Uploaded
// images are resized and stored, their filenames go into the patch next
// to the form's text fields. JSON requests pass through untouched.
func (h *Handler) TourImages(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Next()
		return
	}
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "tours-resize-images")
	defer span.End()

	id, err := paramID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, utils.WrapAppError(http.StatusBadRequest, "Invalid multipart body", err))
		return
	}
	covers, images := form.File["imageCover"], form.File["images"]
	if len(covers) > 1 || len(images) > maxTourImages {
		fail(c, utils.BadRequest(fmt.Sprintf("Upload at most 1 imageCover and %d images", maxTourImages)))
		return
	}

	patch := make(map[string]any, len(form.Value)+2)
	for k, v := range form.Value {
		if len(v) > 0 {
			patch[k] = formValue(v[0])
		}
	}

	stamp := h.now().Unix()
	var jobs []tourUpload
	if len(covers) == 1 {
		name := fmt.Sprintf("tour-%s-%d-cover.jpeg", id.Hex(), stamp)
		jobs = append(jobs, tourImageJob(covers[0], name))
		patch["imageCover"] = name
	}
	if len(images) > 0 {
		names := make([]string, 0, len(images))
		for i, fh := range images {
			name := fmt.Sprintf("tour-%s-%d-%d.jpeg", id.Hex(), stamp, i+1)
			jobs = append(jobs, tourImageJob(fh, name))
			names = append(names, name)
		}
		patch["images"] = names
	}
	for _, job := range jobs {
		if !services.IsImage(job.contentType) {
			fail(c, services.ErrNotAnImage)
			return
		}
	}
	span.SetAttributes(attribute.Int("images", len(jobs)))

	if err := h.images.SaveAll(ctx, tourImageDir, imageJobs(jobs)); err != nil {
		fail(c, err)
		return
	}

	body, err := json.Marshal(patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	c.Request.ContentLength = int64(len(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Next()
}

type tourUpload struct {
	services.ImageJob
	contentType string
}

func tourImageJob(fh *multipart.FileHeader, name string) tourUpload {
	return tourUpload{
		ImageJob: services.ImageJob{
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
			Filename: name,
			Width:    services.TourImageW,
			Height:   services.TourImageH,
		},
		contentType: fh.Header.Get("Content-Type"),
	}
}

func imageJobs(uploads []tourUpload) []services.ImageJob {
	out := make([]services.ImageJob, len(uploads))
	for i, u := range uploads {
		out[i] = u.ImageJob
	}
	return out
}

// formValue gives multipart text fields the JSON type they would have had
// in a JSON body.
func formValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
