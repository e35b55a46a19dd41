package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/middleware"
	"github.com/gatewise/vms-api/internal/models"
)

func currentApprover(c *gin.Context) *models.Approver {
	return middleware.CurrentApprover(c)
}
