package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/birdhouse-labs/aviary/internal/model"
	"github.com/birdhouse-labs/aviary/internal/repository"
	"github.com/birdhouse-labs/aviary/internal/response"
	"github.com/birdhouse-labs/aviary/internal/storage"
)

const (
	msgNotFound     = "Bird not found"
	msgBadName      = "Name is required and must be 10 characters or less"
	msgImageTooBig  = "Image must be 1MB or smaller"
	msgBadForm      = "Invalid form data"
	msgDeleted      = "Bird deleted successfully"
	operationHeader = "X-Operation"
)

// birdForm carries the validation rules for a submitted name.
type birdForm struct {
	Name string `validate:"required,max=10"`
}

// BirdHandler serves the catalog CRUD routes.
type BirdHandler struct {
	repo     *repository.BirdRepository
	images   *storage.ImageStore
	log      zerolog.Logger
	validate *validator.Validate
}

// New returns a BirdHandler over the given stores.
func New(repo *repository.BirdRepository, images *storage.ImageStore, log zerolog.Logger) *BirdHandler {
	return &BirdHandler{repo: repo, images: images, log: log, validate: validator.New()}
}

// birdWithOperation is a record plus the operation description echoed back to
// the client on mutations.
type birdWithOperation struct {
	model.Bird
	Operation string `json:"operation"`
}

// Operation returns the client-supplied description of a mutating request
// from the X-Operation header (URL-encoded by the front-end), falling back to
// "<METHOD> <path>".
func Operation(c echo.Context) string {
	if raw := c.Request().Header.Get(operationHeader); raw != "" {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			return decoded
		}
		return raw
	}
	return c.Request().Method + " " + c.Request().URL.Path
}

// List handles GET /api/birds.
func (h *BirdHandler) List(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	birds, hasMore := h.repo.List(page, c.QueryParam("search"))
	return c.JSON(http.StatusOK, map[string]any{"birds": birds, "hasMore": hasMore})
}

// Count handles GET /api/birds/count. "type" is the number of distinct names.
func (h *BirdHandler) Count(c echo.Context) error {
	total, distinct := h.repo.Counts()
	return c.JSON(http.StatusOK, map[string]int{"count": total, "type": distinct})
}

// Get handles GET /api/birds/:id.
func (h *BirdHandler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.NotFound(c, msgNotFound)
	}
	bird, err := h.repo.Get(id)
	if err != nil {
		return response.NotFound(c, msgNotFound)
	}
	return c.JSON(http.StatusOK, bird)
}

// Create handles POST /api/birds (multipart field "name", optional file
// "image").
func (h *BirdHandler) Create(c echo.Context) error {
	name := c.FormValue("name")
	if err := h.validate.Struct(birdForm{Name: name}); err != nil {
		return response.BadRequest(c, msgBadName)
	}
	fh, err := h.formImage(c)
	if err != nil {
		return response.BadRequest(c, msgBadForm)
	}
	imageName := ""
	if fh != nil {
		if fh.Size > storage.MaxImageBytes {
			return response.BadRequest(c, msgImageTooBig)
		}
		imageName, err = h.images.Save(fh)
		if err != nil {
			h.log.Error().Err(err).Msg("save uploaded image")
			return response.Internal(c)
		}
	}
	bird := h.repo.Create(name, imageName)
	return c.JSON(http.StatusCreated, birdWithOperation{Bird: bird, Operation: Operation(c)})
}

// Update handles PUT /api/birds/:id (multipart, optional "name" and "image").
func (h *BirdHandler) Update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.NotFound(c, msgNotFound)
	}
	var name *string
	if v := c.FormValue("name"); v != "" {
		if err := h.validate.Struct(birdForm{Name: v}); err != nil {
			return response.BadRequest(c, msgBadName)
		}
		name = &v
	}
	fh, err := h.formImage(c)
	if err != nil {
		return response.BadRequest(c, msgBadForm)
	}
	var image *string
	if fh != nil {
		if fh.Size > storage.MaxImageBytes {
			return response.BadRequest(c, msgImageTooBig)
		}
		saved, err := h.images.Save(fh)
		if err != nil {
			h.log.Error().Err(err).Msg("save uploaded image")
			return response.Internal(c)
		}
		image = &saved
	}
	bird, displaced, err := h.repo.Update(id, name, image)
	if err != nil {
		if image != nil {
			h.images.Remove(*image)
		}
		return response.NotFound(c, msgNotFound)
	}
	h.images.Remove(displaced)
	return c.JSON(http.StatusOK, birdWithOperation{Bird: bird, Operation: Operation(c)})
}

// Delete handles DELETE /api/birds/:id. The record's image is removed
// best-effort after the record itself.
func (h *BirdHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.NotFound(c, msgNotFound)
	}
	displaced, err := h.repo.Delete(id)
	if err != nil {
		return response.NotFound(c, msgNotFound)
	}
	h.images.Remove(displaced)
	return c.JSON(http.StatusOK, map[string]string{
		"message":   msgDeleted,
		"operation": Operation(c),
	})
}

// formImage extracts the optional "image" upload. A request without a file,
// or without a multipart body at all, yields nil, nil.
func (h *BirdHandler) formImage(c echo.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	return fh, nil
}
