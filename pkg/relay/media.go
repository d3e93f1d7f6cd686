package relay

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleUpload stores one multipart file under a fresh name and returns the
// path viewers fetch it from. The original file name only contributes its
// extension.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes())

	file, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "upload exceeds limit",
				"limit": s.cfg.MaxUploadMB,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	if err := s.ensureMediaDir(); err != nil {
		log.Printf("relay: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	name := uuid.New().String() + safeExt(file.Filename)
	dst := filepath.Join(s.cfg.MediaDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		log.Printf("relay: saving upload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	log.Printf("relay: stored %s (%d bytes) as %s", file.Filename, file.Size, name)
	c.JSON(http.StatusCreated, gin.H{"url": "/media/" + name})
}

func (s *Server) handleDownload(c *gin.Context) {
	name := filepath.Base(c.Param("name"))
	if name == "." || name == ".." || name == "/" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such file"})
		return
	}

	path := filepath.Join(s.cfg.MediaDir, name)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such file"})
		return
	}
	c.File(path)
}

// safeExt keeps a plain extension from an uploaded name and nothing else.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "." || strings.ContainsAny(ext, "/\\") || len(ext) > 10 {
		return ""
	}
	return ext
}
