package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vinolens/vinolens-analyzer/utils"
)

// ListScanHistory returns recently archived scans from Postgres. The archive
// outlives the Redis records, which expire on their TTL.
func (ctrl *Controller) ListScanHistory(c *gin.Context) {
	ctx := c.Request.Context()

	if ctrl.Repository.ArchiveRepo == nil {
		utils.JSON503(c, gin.H{"message": "scan history is not available"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	archives, err := ctrl.Repository.ArchiveRepo.ListRecent(limit)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[History] Failed to list archived scans")
		utils.JSON500(c, "failed to list scan history")
		return
	}

	utils.JSON200(c, gin.H{"scans": archives, "count": len(archives)})
}
