package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/sbraitsch/farce/internal/catalog"
	"github.com/sbraitsch/farce/internal/taxonomy"
)

// Scaffold handles GET /farce/scaffold/:problem, returning the starter
// source a client should present to a user before they write a
// submission (spec.md §6's scaffold retrieval endpoint).
func (s *Store) Scaffold(c *gin.Context) {
	problem := c.Param("problem")

	entry, err := catalog.Resolve(problem)
	if err != nil {
		var taxErr *taxonomy.Error
		if errors.As(err, &taxErr) && taxErr.Kind == taxonomy.UnknownProblem {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": taxErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error()})
		return
	}

	data, err := os.ReadFile(filepath.Join(entry.TemplateDir, entry.ScaffoldRel))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "scaffold unavailable"})
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}
