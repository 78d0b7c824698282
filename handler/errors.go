package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preferrrr/blocker-server/model"
)

// respondError maps a domain error to its HTTP status. Each error kind keeps
// a stable status so clients can tell "resource missing" from "won't help to
// retry".
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsKind(err, model.KindNotFound):
		status = http.StatusNotFound
	case model.IsKind(err, model.KindForbidden):
		status = http.StatusForbidden
	case model.IsKind(err, model.KindConflict):
		status = http.StatusConflict
	case model.IsKind(err, model.KindInvalidState):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
