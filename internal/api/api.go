// Package api exposes the mapping registry and the ETL engine over HTTP.
// The surface is deliberately thin: it binds requests, delegates to the
// registry and orchestrator, and maps errors to status codes.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldsync/fieldsync/internal/etl"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

// Server routes HTTP requests to the registry and orchestrator.
type Server struct {
	reg  mapping.Registry
	orch *etl.Orchestrator
}

// NewServer builds a Server over the given registry and orchestrator.
func NewServer(reg mapping.Registry, orch *etl.Orchestrator) *Server {
	return &Server{reg: reg, orch: orch}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/mappings/:key", s.listMappings)
		api.POST("/mappings", s.createMapping)
		api.PUT("/mappings/:id", s.updateMapping)
		api.POST("/tables", s.putTableMapping)
		api.POST("/schema/generate", s.generateSchema)
		api.POST("/etl/run", s.runETL)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// mappingJSON is the wire shape of a field mapping. Rule travels as its
// kind/params pair rather than the sealed interface.
type mappingJSON struct {
	ID          int64              `json:"id,omitempty"`
	MappingKey  string             `json:"mapping_key"`
	SourceField string             `json:"source_field"`
	DestColumn  string             `json:"dest_column"`
	Type        string             `json:"type"`
	RuleKind    mapping.RuleKind   `json:"rule_kind,omitempty"`
	RuleParams  mapping.RuleParams `json:"rule_params,omitempty"`
	IsCustom    bool               `json:"is_custom"`
	IsActive    bool               `json:"is_active"`
	IsRequired  bool               `json:"is_required"`
}

func toJSON(fm mapping.FieldMapping) mappingJSON {
	kind, params := mapping.EncodeRule(fm.Rule)
	return mappingJSON{
		ID:          fm.ID,
		MappingKey:  fm.MappingKey,
		SourceField: fm.SourceField,
		DestColumn:  fm.DestColumn,
		Type:        fm.Type.String(),
		RuleKind:    kind,
		RuleParams:  params,
		IsCustom:    fm.IsCustom,
		IsActive:    fm.IsActive,
		IsRequired:  fm.IsRequired,
	}
}

func (s *Server) listMappings(c *gin.Context) {
	fms, err := s.reg.GetActiveMappings(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]mappingJSON, len(fms))
	for i, fm := range fms {
		out[i] = toJSON(fm)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createMapping(c *gin.Context) {
	var req mappingJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.MappingKey == "" || req.SourceField == "" || req.DestColumn == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mapping_key, source_field and dest_column are required"})
		return
	}
	rule, err := mapping.DecodeRule(req.RuleKind, req.RuleParams)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fm := mapping.FieldMapping{
		MappingKey:  req.MappingKey,
		SourceField: req.SourceField,
		DestColumn:  req.DestColumn,
		Type:        mapping.ParseFieldType(req.Type),
		Rule:        rule,
		IsCustom:    req.IsCustom,
		IsActive:    req.IsActive,
		IsRequired:  req.IsRequired,
	}
	created, err := s.reg.AddMapping(c.Request.Context(), fm)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toJSON(created))
}

// updateJSON carries the updatable subset of a mapping. mapping_key and
// source_field are rejected if present: both are fixed for a mapping's life.
type updateJSON struct {
	MappingKey  *string            `json:"mapping_key"`
	SourceField *string            `json:"source_field"`
	DestColumn  *string            `json:"dest_column"`
	Type        *string            `json:"type"`
	RuleKind    *mapping.RuleKind  `json:"rule_kind"`
	RuleParams  mapping.RuleParams `json:"rule_params"`
	IsActive    *bool              `json:"is_active"`
	IsRequired  *bool              `json:"is_required"`
}

func (s *Server) updateMapping(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mapping id"})
		return
	}
	var req updateJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.MappingKey != nil || req.SourceField != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "mapping_key and source_field cannot be changed"})
		return
	}
	upd := mapping.MappingUpdate{
		DestColumn: req.DestColumn,
		IsActive:   req.IsActive,
		IsRequired: req.IsRequired,
	}
	if req.Type != nil {
		t := mapping.ParseFieldType(*req.Type)
		upd.Type = &t
	}
	if req.RuleKind != nil {
		rule, err := mapping.DecodeRule(*req.RuleKind, req.RuleParams)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		upd.Rule = rule
	}
	updated, err := s.reg.UpdateMapping(c.Request.Context(), id, upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toJSON(updated))
}

func (s *Server) putTableMapping(c *gin.Context) {
	var tm mapping.TableMapping
	if err := c.ShouldBindJSON(&tm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := s.reg.PutTableMapping(c.Request.Context(), tm); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tm)
}

type generateRequest struct {
	MappingKey string `json:"mapping_key"`
}

func (s *Server) generateSchema(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	plan, err := s.orch.Plan(c.Request.Context(), req.MappingKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":       plan.Mode,
		"table":      plan.Table,
		"statements": plan.Statements,
		"sql":        plan.SQL(),
	})
}

type runRequest struct {
	MappingKey string           `json:"mapping_key"`
	Rows       []map[string]any `json:"rows"`
	DryRun     bool             `json:"dry_run"`
}

func (s *Server) runETL(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	rep, err := s.orch.Run(c.Request.Context(), req.MappingKey, req.Rows, etl.Options{DryRun: req.DryRun})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// fail maps registry sentinels to configuration status codes; anything else
// happened while talking to the destination and reports as a bad gateway.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mapping.ErrMappingNotFound),
		errors.Is(err, mapping.ErrTableMappingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, mapping.ErrNoMappings):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, mapping.ErrDuplicateMapping):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
