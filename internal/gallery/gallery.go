// Package gallery is the read side: the public projection of stored works and
// safe access to their image assets.
package gallery

import (
	"context"
	"fmt"
	"os"
	"strings"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/imaging"
	"lhtl/internal/logging"
	"lhtl/internal/works"
)

// Source is the store surface the gallery reads from.
type Source interface {
	LoadAll(ctx context.Context) ([]works.Record, error)
	ResolveAsset(filename string) (string, error)
}

// Asset is a resolved asset ready to be served.
type Asset struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
}

// Gallery serves stored works.
type Gallery struct {
	source Source
	logger logging.Logger
}

// New builds a gallery over source.
func New(source Source, logger logging.Logger) *Gallery {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Gallery")
	}
	return &Gallery{source: source, logger: logger}
}

// ListWorks returns every valid stored work in append order. It never fails:
// a corrupt store reads as empty and invalid records are skipped, both with a
// warning.
func (g *Gallery) ListWorks(ctx context.Context) []works.PublicWork {
	records := g.load(ctx)
	out := make([]works.PublicWork, 0, len(records))
	for i, rec := range records {
		if invalid := rec.Validate(); len(invalid) > 0 {
			g.logger.Warn("Skipping stored record #%d (id=%q): invalid fields %s", i, rec.ID, strings.Join(invalid, ", "))
			continue
		}
		out = append(out, rec.Public())
	}
	return out
}

// GetWork returns the valid record with the given id.
func (g *Gallery) GetWork(ctx context.Context, id string) (works.Record, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		for _, rec := range g.load(ctx) {
			if rec.ID == id && len(rec.Validate()) == 0 {
				return rec, nil
			}
		}
	}
	return works.Record{}, &apperrors.NotFoundError{Resource: "work", Name: id}
}

// OpenAsset resolves filename inside the asset root. Every failure is a
// *errors.NotFoundError.
func (g *Gallery) OpenAsset(filename string) (Asset, error) {
	path, err := g.source.ResolveAsset(filename)
	if err != nil {
		return Asset{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, &apperrors.NotFoundError{Resource: "asset", Name: filename}
	}
	return Asset{
		Name:        filename,
		Path:        path,
		ContentType: imaging.ContentTypeForExtension(imaging.Extension(filename)),
		Size:        info.Size(),
	}, nil
}

// ReadAssetDataURL loads a stored image and returns it as a base64 data URL.
func (g *Gallery) ReadAssetDataURL(filename string) (string, error) {
	asset, err := g.OpenAsset(filename)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		return "", &apperrors.NotFoundError{Resource: "asset", Name: filename}
	}
	format, err := imaging.Verify(data)
	if err != nil {
		return "", fmt.Errorf("stored asset %s is not a valid image: %v", filename, err)
	}
	return imaging.DataURL(data, format), nil
}

func (g *Gallery) load(ctx context.Context) []works.Record {
	records, err := g.source.LoadAll(ctx)
	if err != nil {
		logging.FromContext(ctx, g.logger).Warn("Reading works failed, serving empty list: %v", err)
	}
	return records
}
