package handler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// stageFormFile saves a multipart file into the local temp dir and
// returns the staged path. The staged copy is consumed by the upload
// transaction, which removes it on every outcome.
func stageFormFile(c *gin.Context, field, tempDir string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", err
	}

	staged := filepath.Join(tempDir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, staged); err != nil {
		return "", err
	}

	return staged, nil
}
