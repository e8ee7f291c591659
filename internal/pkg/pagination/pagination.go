package pagination

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	DefaultPage = 1
	DefaultSize = 20
	MaxSize     = 100
)

// Query is a 1-based page request.
type Query struct {
	Page int
	Size int
}

// FromContext reads ?page= and ?size=. Missing values fall back to the
// defaults, sizes above MaxSize are clamped, anything else malformed is a
// validation error.
func FromContext(c *gin.Context) (Query, error) {
	page, err := intParam(c, "page", DefaultPage)
	if err != nil {
		return Query{}, err
	}
	size, err := intParam(c, "size", DefaultSize)
	if err != nil {
		return Query{}, err
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Query{Page: page, Size: size}, nil
}

func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Meta builds the response metadata for a result set of total rows.
func (q Query) Meta(total int64) response.Pagination {
	totalPage := 0
	if q.Size > 0 {
		totalPage = int((total + int64(q.Size) - 1) / int64(q.Size))
	}
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}

// Paginate counts db, then loads the requested window into dest.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.Pagination{}, apperr.Storage("paginate", err)
	}
	if err := db.Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, apperr.Storage("paginate", err)
	}
	return q.Meta(total), nil
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apperr.Validation("%s must be a positive integer", name)
	}
	return v, nil
}
