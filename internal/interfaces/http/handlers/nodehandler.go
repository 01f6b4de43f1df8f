package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vetiver-inc/vetiver/internal/application/node/usecases"
	"github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
	"github.com/vetiver-inc/vetiver/internal/shared/utils"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

// NodeHandler serves the read-only node endpoints.
type NodeHandler struct {
	getNodeUC   getNodeUseCase
	listNodesUC listNodesUseCase
	masterLogs  masterLogSource
	logger      logger.Interface
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(
	getNodeUC getNodeUseCase,
	listNodesUC listNodesUseCase,
	masterLogs masterLogSource,
	log logger.Interface,
) *NodeHandler {
	return &NodeHandler{
		getNodeUC:   getNodeUC,
		listNodesUC: listNodesUC,
		masterLogs:  masterLogs,
		logger:      log,
	}
}

// ListNodes handles GET /api/v1/nodes
func (h *NodeHandler) ListNodes(c *gin.Context) {
	pagination := utils.ParsePagination(c)

	query := usecases.ListNodesQuery{
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}
	if status := c.Query("status"); status != "" {
		query.Status = &status
	}
	if name := c.Query("name"); name != "" {
		query.Name = &name
	}

	result, err := h.listNodesUC.Execute(c.Request.Context(), query)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.ListSuccessResponse(c, result.Nodes, result.TotalCount, pagination.Page, pagination.PageSize)
}

// GetNode handles GET /api/v1/nodes/:id
func (h *NodeHandler) GetNode(c *gin.Context) {
	nodeID, err := parseNodeID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	query := usecases.GetNodeQuery{NodeID: nodeID}
	result, err := h.getNodeUC.Execute(c.Request.Context(), query)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result.Node)
}

// GetNodeLogs handles GET /api/v1/nodes/:id/logs. Only the master
// instance (id 0) keeps a log window; remote node output stays on the
// remote box.
func (h *NodeHandler) GetNodeLogs(c *gin.Context) {
	rawID := c.Param("id")
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid node ID"))
		return
	}
	if id != 0 {
		utils.ErrorResponseWithError(c,
			errors.NewValidationError("engine logs are only kept for the master instance (id 0)"))
		return
	}
	if h.masterLogs == nil {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("master engine is not configured"))
		return
	}

	lines := defaultLogLines
	if raw := c.Query("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.ErrorResponseWithError(c, errors.NewValidationError("lines must be a positive integer"))
			return
		}
		lines = parsed
	}
	if lines > maxLogLines {
		lines = maxLogLines
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"running": h.masterLogs.IsRunning(),
		"lines":   h.masterLogs.RecentLogs(lines),
	})
}

// parseNodeID extracts and validates the node ID path parameter
func parseNodeID(c *gin.Context) (uint, error) {
	rawID := c.Param("id")
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.NewValidationError("invalid node ID")
	}
	return uint(id), nil
}
