package handlers

import (
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"boutique/internal/storage"
)

const maxProductImages = 4

var errTooManyImages = fmt.Errorf("at most %d images are allowed", maxProductImages)

// ImageSaver stores uploaded product media. *storage.ImageStore satisfies it.
type ImageSaver interface {
	Save(file *multipart.FileHeader) (string, error)
	DeleteAll(paths ...string)
}

/*
=======================
  INPUT STRUCT
=======================
*/

type MultipartProductInput struct {
	Name           string
	NameSet        bool
	Description    string
	DescriptionSet bool
	Price          float64
	PriceSet       bool
	SaleEnabled    bool
	SaleEnabledSet bool
	SalePrice      float64
	SalePriceSet   bool
	Category       string
	CategorySet    bool
	Brand          string
	BrandSet       bool
	Stock          int
	StockSet       bool
	Size           string
	SizeSet        bool
	Color          string
	ColorSet       bool
	Cloth          string
	ClothSet       bool
	IsActive       bool
	IsActiveSet    bool
	Thumbnail      string
	ThumbnailSet   bool
	Images         []string
	ImagesSet      bool
}

// savedPaths lists every file written while parsing, for cleanup when the
// request is rejected later on.
func (in MultipartProductInput) savedPaths() []string {
	paths := make([]string, 0, len(in.Images)+1)
	if in.Thumbnail != "" {
		paths = append(paths, in.Thumbnail)
	}
	return append(paths, in.Images...)
}

/*
=======================
  PARSER
=======================
*/

// lastPostForm returns the last submitted value of a field. Browsers send a
// hidden "false" ahead of a checked checkbox.
func lastPostForm(c *gin.Context, key string) (string, bool) {
	values, ok := c.GetPostFormArray(key)
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[len(values)-1], true
}

func parseMultipartProductRequest(c *gin.Context, images ImageSaver) (MultipartProductInput, error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		log.Println("[PRODUCT] [ERROR] multipart parse failed:", err)
		return MultipartProductInput{}, err
	}

	input := MultipartProductInput{}

	strField := func(key string, dst *string, set *bool) {
		if value, ok := lastPostForm(c, key); ok {
			*dst = strings.TrimSpace(value)
			*set = true
		}
	}
	strField("name", &input.Name, &input.NameSet)
	strField("description", &input.Description, &input.DescriptionSet)
	strField("category", &input.Category, &input.CategorySet)
	strField("brand", &input.Brand, &input.BrandSet)
	strField("size", &input.Size, &input.SizeSet)
	strField("color", &input.Color, &input.ColorSet)
	strField("cloth", &input.Cloth, &input.ClothSet)

	if value, ok := lastPostForm(c, "price"); ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return MultipartProductInput{}, fmt.Errorf("price must be a number")
		}
		input.Price = parsed
		input.PriceSet = true
	}

	if value, ok := lastPostForm(c, "salePrice"); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return MultipartProductInput{}, fmt.Errorf("salePrice must be a number")
		}
		input.SalePrice = parsed
		input.SalePriceSet = true
	}

	if value, ok := lastPostForm(c, "stock"); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return MultipartProductInput{}, fmt.Errorf("stock must be an integer")
		}
		input.Stock = parsed
		input.StockSet = true
	}

	if value, ok := lastPostForm(c, "saleEnabled"); ok {
		parsed, err := parseBoolValue(value)
		if err != nil {
			return MultipartProductInput{}, fmt.Errorf("saleEnabled must be boolean")
		}
		input.SaleEnabled = parsed
		input.SaleEnabledSet = true
	}

	if value, ok := lastPostForm(c, "isActive"); ok {
		parsed, err := parseBoolValue(value)
		if err != nil {
			return MultipartProductInput{}, fmt.Errorf("isActive must be boolean")
		}
		input.IsActive = parsed
		input.IsActiveSet = true
	}

	// ---- FILES ----

	var files []*multipart.FileHeader
	if c.Request.MultipartForm != nil {
		files = c.Request.MultipartForm.File["images"]
	}
	if len(files) > maxProductImages {
		return MultipartProductInput{}, errTooManyImages
	}

	thumbnail, err := c.FormFile("thumbnail")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return MultipartProductInput{}, err
	}
	if thumbnail != nil {
		path, err := images.Save(thumbnail)
		if err != nil {
			return MultipartProductInput{}, err
		}
		input.Thumbnail = path
		input.ThumbnailSet = true
	}

	for _, file := range files {
		path, err := images.Save(file)
		if err != nil {
			images.DeleteAll(input.savedPaths()...)
			return MultipartProductInput{}, err
		}
		input.Images = append(input.Images, path)
		input.ImagesSet = true
	}

	return input, nil
}

/*
=======================
  HELPERS
=======================
*/

func parseBoolValue(value string) (bool, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "on" {
		return true, nil
	}
	return strconv.ParseBool(value)
}

func respondMultipartError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, storage.ErrImageTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
