package livequest

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	thumbMaxWidth = 1600
	jpegQuality   = 80
)

// handleThumbnail serves a storage image resized to at most :width pixels
// wide, re-encoded as JPEG. Originals narrower than the target pass through
// the resize untouched.
func (a *App) handleThumbnail(c echo.Context) error {
	width, err := strconv.Atoi(c.Param("width"))
	if err != nil || width <= 0 || width > thumbMaxWidth {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid width")
	}

	rel := c.Param("*")
	path, err := a.storagePath(rel)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	f, err := os.Open(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	defer f.Close()

	data, err := resizeImage(f, width)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "not an image")
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

// storagePath resolves a request path against the storage root, rejecting
// anything that escapes it.
func (a *App) storagePath(rel string) (string, error) {
	root, err := filepath.Abs(a.Config.StorageDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, filepath.FromSlash(rel))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root")
	}
	return path, nil
}

// resizeImage decodes src, scales it down to maxWidth if wider, and encodes
// it as JPEG.
func resizeImage(src *os.File, maxWidth int) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxWidth {
		newH := h * maxWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
