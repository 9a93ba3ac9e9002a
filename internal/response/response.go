package response

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"mrp/internal/models"
	"mrp/internal/validation"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

func write(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusOK, models.APIResponse{Data: data})
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusCreated, models.APIResponse{Data: data})
}

// JSONMeta writes a successful API response with pagination metadata.
func JSONMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	write(w, http.StatusOK, models.APIResponse{
		Data: data,
		Meta: &models.Meta{Total: total, Page: page, Limit: limit},
	})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	write(w, code, map[string]string{"error": msg})
}

// Invalid writes a 400 listing every field error.
func Invalid(w http.ResponseWriter, ve *validation.ValidationErrors) {
	write(w, http.StatusBadRequest, map[string]interface{}{
		"error":  ve.Error(),
		"fields": ve.Errors,
	})
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntax):
			return fmt.Errorf("malformed JSON at offset %d", syntax.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("field %q has the wrong type", typeErr.Field)
		}
		return err
	}
	return nil
}

// Pagination reads page and limit query parameters with sane bounds.
func Pagination(r *http.Request, defaultLimit int) (page, limit, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = defaultLimit
	}
	return page, limit, (page - 1) * limit
}

// DBErr writes 404 for a missing row and 500 for anything else.
func DBErr(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		Err(w, "not found", http.StatusNotFound)
		return
	}
	Err(w, err.Error(), http.StatusInternalServerError)
}

// ID parses a path id, writing a 400 when it is not a positive integer.
func ID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		Err(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
