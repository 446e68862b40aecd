package controller

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vinolens/vinolens-analyzer/entity"
	"github.com/vinolens/vinolens-analyzer/http/controller/dto"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
	"github.com/vinolens/vinolens-analyzer/repository"
	"github.com/vinolens/vinolens-analyzer/utils"
)

// SubmitScan is the trigger endpoint. It validates the payload, persists the
// image, writes the initial job record, dispatches the worker and returns
// immediately - the synchronous boundary ends here no matter how long the
// pipeline runs.
func (ctrl *Controller) SubmitScan(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SubmitScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Scan] Rejected submission with missing image payload")
		utils.JSON400(c, "image is required")
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = c.GetString("request_id")
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	imageData, contentType, err := decodeImagePayload(req.Image)
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Scan] Rejected undecodable image payload (request_id=%s): %v", requestID, err)
		utils.JSON400(c, "image payload is not valid base64: "+err.Error())
		return
	}
	if int64(len(imageData)) > ctrl.Config.EnvConfig.Scan.MaxImageBytes {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Scan] Rejected oversize image payload of %d bytes (request_id=%s)", len(imageData), requestID)
		utils.JSON400(c, "image payload is too large")
		return
	}

	jobID := uuid.New().String()

	imageURL, err := ctrl.Blobs.PutImage(ctx, imageData, contentType)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Scan] Failed to store image (request_id=%s)", requestID)
		utils.JSON500(c, "failed to store image")
		return
	}

	job := &entity.ScanJob{
		JobID:     jobID,
		Status:    entity.StatusUploading,
		RequestID: requestID,
		ImageURL:  imageURL,
	}
	if err := ctrl.Repository.ScanRepo.Create(ctx, job); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Scan] Failed to create job record (request_id=%s, job_id=%s)", requestID, jobID)
		utils.JSON500(c, "failed to create scan job")
		return
	}

	// Fire-and-forget dispatch; the worker's outcome is only ever observed
	// through the job store.
	dispatchErr := ctrl.Dispatch.PublishAnalyzeScan(ctx, produce.ScanJobMessage{
		JobID:     jobID,
		ImageURL:  imageURL,
		RequestID: requestID,
	})
	if dispatchErr != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, dispatchErr, "[Scan] Failed to dispatch worker (request_id=%s, job_id=%s)", requestID, jobID)
		status := entity.StatusTriggerFailed
		msg := dispatchErr.Error()
		if _, err := ctrl.Repository.ScanRepo.Update(ctx, jobID, entity.ScanJobPatch{Status: &status, Error: &msg}); err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Scan] Failed to mark job trigger_failed (request_id=%s, job_id=%s)", requestID, jobID)
		}
		utils.JSON502(c, dto.SubmitScanResponse{
			JobID:     jobID,
			Status:    "error",
			RequestID: requestID,
			Message:   "failed to dispatch analyzer",
		})
		return
	}

	status := entity.StatusProcessing
	if _, err := ctrl.Repository.ScanRepo.Update(ctx, jobID, entity.ScanJobPatch{Status: &status}); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Scan] Failed to mark job processing (request_id=%s, job_id=%s)", requestID, jobID)
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Scan] Dispatched job (request_id=%s, job_id=%s)", requestID, jobID)
	utils.JSON202(c, dto.SubmitScanResponse{
		JobID:     jobID,
		Status:    "processing",
		RequestID: requestID,
	})
}

// GetScanStatus is the polling endpoint. It reads the primary record, merges
// the detail record for completed jobs and never writes anything.
func (ctrl *Controller) GetScanStatus(c *gin.Context) {
	ctx := c.Request.Context()

	jobID := c.Param("job_id")
	if jobID == "" {
		utils.JSON400(c, "job_id is required")
		return
	}

	job, err := ctrl.Repository.ScanRepo.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			// Expired and never-created jobs are indistinguishable.
			utils.JSON200(c, dto.ScanStatusResponse{Status: "not_found"})
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Scan] Failed to read job (job_id=%s)", jobID)
		utils.JSON500(c, "failed to read scan job")
		return
	}

	resp := dto.ScanStatusResponse{
		Status: string(job.Status),
		Error:  job.Error,
	}

	switch job.Status {
	case entity.StatusCompleted:
		resp.Data = ctrl.completedScanData(c, job)
	case entity.StatusFailed, entity.StatusTriggerFailed:
		resp.Data = &dto.ScanData{Items: []entity.Item{}, ImageURL: job.ImageURL, Error: job.Error}
	}

	utils.JSON200(c, resp)
}

// completedScanData merges the detail record into the response. A missing
// detail (expired, oversize-skipped, or racing the worker's second write)
// degrades to the primary record's summary instead of erroring.
func (ctrl *Controller) completedScanData(c *gin.Context, job *entity.ScanJob) *dto.ScanData {
	ctx := c.Request.Context()

	detail, err := ctrl.Repository.ScanRepo.GetDetail(ctx, job.JobID)
	if err == nil {
		return &dto.ScanData{Items: detail.Items, ImageURL: job.ImageURL}
	}
	if !errors.Is(err, repository.ErrJobNotFound) {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Scan] Failed to read detail record (request_id=%s, job_id=%s)", job.RequestID, job.JobID)
	}

	data := &dto.ScanData{Items: []entity.Item{}, ImageURL: job.ImageURL}
	if job.ResultSummary != nil {
		for _, name := range job.ResultSummary.ItemNames {
			data.Items = append(data.Items, entity.Item{Name: name})
		}
		if job.ResultSummary.Notice != "" {
			data.Error = job.ResultSummary.Notice
		}
	}
	return data
}

// decodeImagePayload accepts a raw base64 string or a data-URL and returns
// the image bytes plus a content type.
func decodeImagePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", errors.New("empty payload")
	}

	contentType := "image/jpeg"
	encoded := payload
	if strings.HasPrefix(payload, "data:") {
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, "", errors.New("malformed data url")
		}
		meta := payload[len("data:"):idx]
		encoded = payload[idx+1:]
		if semi := strings.IndexByte(meta, ';'); semi >= 0 {
			if meta[:semi] != "" {
				contentType = meta[:semi]
			}
		} else if meta != "" {
			contentType = meta
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty image")
	}
	return data, contentType, nil
}
