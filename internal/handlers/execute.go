// Package handlers holds the gin.HandlerFunc implementations cmd/farced
// registers, grounded on the APIStore pattern in
// _examples/e2b-dev-infra/packages/api/internal/handlers: a small store
// struct carries the request-independent collaborators, and each
// exported method is wired onto a route.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sbraitsch/farce/internal/catalog"
	"github.com/sbraitsch/farce/internal/sandbox"
	"github.com/sbraitsch/farce/internal/workpool"
)

// Store carries the collaborators request handlers need.
type Store struct {
	Pipeline *sandbox.Pipeline
	Pool     *workpool.Pool
}

// executeRequest is the wire shape of a submission.
type executeRequest struct {
	Problem string  `json:"function" binding:"required"`
	Source  string  `json:"user_input"`
	Param   *string `json:"param"`
}

// executeResponse is the wire shape of a completed run. Out is always
// present: either the guest's decoded JSON result or a JSON null.
type executeResponse struct {
	Log *string         `json:"log"`
	Out json.RawMessage `json:"out"`
}

var nullOut = json.RawMessage("null")

// Execute handles POST /farce/execute. It always responds 200: a
// malformed request, an unrecognized problem, and a guest trap are all
// reported through the log field rather than an HTTP error status,
// matching the reference's contract that execution outcomes — good or
// bad — are payload, not transport, errors.
func (s *Store) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := fmt.Sprintf("Error: %s", err.Error())
		c.JSON(http.StatusOK, executeResponse{Log: &msg, Out: nullOut})
		return
	}

	sub := sandbox.Submission{
		Problem: catalog.Problem(req.Problem),
		Source:  []byte(req.Source),
		Param:   req.Param,
	}

	// The pipeline runs under a context detached from the request's
	// cancellation: a client that disconnects mid-compile must not tear
	// down a toolchain subprocess already holding the shared build
	// cache (spec.md §5's "client disconnect does not cancel an
	// in-flight compile").
	runCtx := context.WithoutCancel(c.Request.Context())

	result, completed := workpool.Do(c.Request.Context(), s.Pool, func() sandbox.Result {
		return s.Pipeline.Execute(runCtx, sub)
	})
	if !completed {
		msg := "Error: client disconnected before execution completed"
		c.JSON(http.StatusOK, executeResponse{Log: &msg, Out: nullOut})
		return
	}

	c.JSON(http.StatusOK, executeResponse{Log: result.Log, Out: result.Out})
}
