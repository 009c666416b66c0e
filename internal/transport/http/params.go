package http

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/domain"
)

// bind decodes the JSON body into dst and validates it. Decode failures are
// reported as a generic invalid body error.
func bind(c echo.Context, dst interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return errInvalidBody
	}
	return c.Validate(dst)
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.FieldValidationError(name, "must be a positive integer")
	}
	return id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.FieldValidationError(name, "must be an integer")
	}
	return n, nil
}

func queryID(c echo.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.FieldValidationError(name, "must be a positive integer")
	}
	return id, nil
}

func queryBool(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

func pageParams(c echo.Context) (domain.Page, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return domain.Page{}, err
	}
	perPage, err := queryInt(c, "per_page")
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Page: page, PerPage: perPage}.Normalize(), nil
}

// listResponse is the envelope of paginated listings.
type listResponse struct {
	Data interface{} `json:"data"`
	Meta domain.Meta `json:"meta"`
}
