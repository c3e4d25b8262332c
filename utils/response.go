package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	ctx.JSON(iris.Map{
		"data": data,
		"meta": PageMeta{Page: page, PerPage: perPage, Total: total},
	})
}

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}

func CreateError(statusCode int, title, detail string, ctx iris.Context) {
	ctx.StopWithJSON(statusCode, iris.Map{"title": title, "detail": detail})
}

func CreateInternalServerError(ctx iris.Context) {
	CreateError(iris.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred.", ctx)
}

func CreateNotFound(ctx iris.Context) {
	CreateError(iris.StatusNotFound, "Not Found", "Resource not found.", ctx)
}

func CreateForbidden(ctx iris.Context) {
	CreateError(iris.StatusForbidden, "Forbidden", "You are not allowed to access this resource.", ctx)
}

func CreateEmailAlreadyRegistered(ctx iris.Context) {
	CreateError(iris.StatusConflict, "Conflict", "Email already registered.", ctx)
}

// HandleValidationErrors maps validator failures onto a 422 with per-field
// detail, or a plain 400 for malformed JSON.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		validationErrors := make([]iris.Map, 0, len(errs))
		for _, validationErr := range errs {
			validationErrors = append(validationErrors, iris.Map{
				"field": validationErr.Field(),
				"tag":   validationErr.Tag(),
				"value": validationErr.Param(),
			})
		}
		ctx.StopWithJSON(iris.StatusUnprocessableEntity, iris.Map{
			"title":  "Validation Error",
			"errors": validationErrors,
		})
		return
	}
	CreateError(iris.StatusBadRequest, "Bad Request", "Invalid request payload.", ctx)
}
