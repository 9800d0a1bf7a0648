package transport

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	"github.com/GolovachevS/cr-dashboard/internal/service"
)

type handler struct {
	svc         *service.Service
	development bool
}

type statusRequest struct {
	Status string `json:"status"`
}

type healthStatus struct {
	Status string `json:"status"`
}

func (h handler) health(c *gin.Context) {
	respondOK(c, nethttp.StatusOK, healthStatus{Status: "OK"}, "Server is running")
}

func (h handler) listUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to fetch users", err)
		return
	}
	respondOK(c, nethttp.StatusOK, users, "")
}

func (h handler) createUser(c *gin.Context) {
	var req service.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to create user", err)
		return
	}
	respondOK(c, nethttp.StatusCreated, user, "User created successfully")
}

func (h handler) listChangeRequests(c *gin.Context) {
	crs, err := h.svc.ListChangeRequests(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to fetch change requests", err)
		return
	}
	respondOK(c, nethttp.StatusOK, crs, "")
}

func (h handler) listChangeRequestsForUser(c *gin.Context) {
	crs, err := h.svc.ListChangeRequestsForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.respondError(c, "Failed to fetch user change requests", err)
		return
	}
	respondOK(c, nethttp.StatusOK, crs, "")
}

func (h handler) createChangeRequest(c *gin.Context) {
	var req service.CreateChangeRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	cr, err := h.svc.CreateChangeRequest(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to create change request", err)
		return
	}
	respondOK(c, nethttp.StatusCreated, cr, "Change request created successfully")
}

func (h handler) updateChangeRequestStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	cr, err := h.svc.UpdateChangeRequestStatus(c.Request.Context(), c.Param("crId"), req.Status)
	if err != nil {
		h.respondError(c, "Failed to update change request status", err)
		return
	}
	respondOK(c, nethttp.StatusOK, cr, "Change request status updated successfully")
}

func (h handler) updateChangeRequest(c *gin.Context) {
	var req service.UpdateChangeRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	cr, err := h.svc.UpdateChangeRequest(c.Request.Context(), c.Param("crId"), req)
	if err != nil {
		h.respondError(c, "Failed to update change request", err)
		return
	}
	respondOK(c, nethttp.StatusOK, cr, "Change request updated successfully")
}

func (h handler) deleteChangeRequest(c *gin.Context) {
	if err := h.svc.DeleteChangeRequest(c.Request.Context(), c.Param("crId")); err != nil {
		h.respondError(c, "Failed to delete change request", err)
		return
	}
	respondOK(c, nethttp.StatusOK, nil, "Change request deleted successfully")
}

func (h handler) listTasks(c *gin.Context) {
	tasks, err := h.svc.ListTasks(c.Request.Context(), c.Param("crId"))
	if err != nil {
		h.respondError(c, "Failed to fetch tasks", err)
		return
	}
	respondOK(c, nethttp.StatusOK, tasks, "")
}

func (h handler) updateTaskStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	task, err := h.svc.UpdateTaskStatus(c.Request.Context(), c.Param("taskId"), req.Status)
	if err != nil {
		h.respondError(c, "Failed to update task status", err)
		return
	}
	respondOK(c, nethttp.StatusOK, task, "Task status updated successfully")
}
