package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Business codes carried in the response envelope next to the HTTP status.
const (
	CodeOK           = 0
	CodeInvalidJSON  = 10001
	CodeInvalidParam = 10002
	CodeUnauthorized = 40101
	CodeNotFound     = 40401
	CodeConflict     = 40901
	CodeStoreErr     = 50001
	CodeModelErr     = 50002
	CodeQueueErr     = 50003
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    CodeOK,
		"message": "ok",
		"data":    data,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    CodeOK,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// Abort writes a failure envelope and stops the handler chain.
func Abort(c *gin.Context, httpStatus int, code int, msg string) {
	Fail(c, httpStatus, code, msg)
	c.Abort()
}
