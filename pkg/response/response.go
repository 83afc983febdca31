// Package response defines the JSON envelope every REST endpoint answers
// with: {success, data, error}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the wire shape of every REST response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Envelope{Success: false, Error: msg})
}

// OK sends 200 with data.
func OK(c *gin.Context, data interface{}) { ok(c, http.StatusOK, data) }

// Created sends 201 with data.
func Created(c *gin.Context, data interface{}) { ok(c, http.StatusCreated, data) }

// BadRequest sends 400.
func BadRequest(c *gin.Context, msg string) { fail(c, http.StatusBadRequest, msg) }

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) { fail(c, http.StatusUnauthorized, msg) }

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) { fail(c, http.StatusNotFound, msg) }

// Internal sends 500.
func Internal(c *gin.Context, msg string) { fail(c, http.StatusInternalServerError, msg) }

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) { fail(c, http.StatusServiceUnavailable, msg) }
