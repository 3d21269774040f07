package ingest

import (
	"strings"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/imaging"
)

// Canonical submission keys. Validation errors name these.
const (
	FieldAuthor     = "author"
	FieldHabits     = "habits"
	FieldReflection = "reflection"
	FileScorecard   = "scorecard"
	FileComic       = "comic"
)

// Upload is one received file part.
type Upload struct {
	Filename string
	Data     []byte
}

// Submission is one decoded multipart submission.
type Submission struct {
	Author     string
	Habits     string
	Reflection string
	Scorecard  *Upload
	Comic      *Upload
}

// checkedImage is an upload that passed every validation step.
type checkedImage struct {
	role   string
	data   []byte
	format imaging.Format
}

// validate runs the text, presence, extension and content checks in that
// order and returns the first failing stage as a *errors.ValidationError
// naming every offending key of that stage.
func validate(sub Submission) ([]checkedImage, error) {
	var missingFields []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{FieldAuthor, sub.Author},
		{FieldHabits, sub.Habits},
		{FieldReflection, sub.Reflection},
	} {
		if strings.TrimSpace(f.value) == "" {
			missingFields = append(missingFields, f.name)
		}
	}
	if len(missingFields) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", missingFields...)
	}

	uploads := []struct {
		key    string
		upload *Upload
	}{
		{FileScorecard, sub.Scorecard},
		{FileComic, sub.Comic},
	}

	var missingFiles []string
	for _, u := range uploads {
		if u.upload == nil || strings.TrimSpace(u.upload.Filename) == "" {
			missingFiles = append(missingFiles, u.key)
		}
	}
	if len(missingFiles) > 0 {
		return nil, apperrors.NewValidationError("missing required files", missingFiles...)
	}

	var badExt []string
	for _, u := range uploads {
		if !imaging.AllowedExtension(imaging.Extension(u.upload.Filename)) {
			badExt = append(badExt, u.key)
		}
	}
	if len(badExt) > 0 {
		return nil, apperrors.NewValidationError("unsupported file type (allowed: png, jpg, jpeg, gif)", badExt...)
	}

	checked := make([]checkedImage, 0, len(uploads))
	var badContent []string
	for _, u := range uploads {
		format, err := imaging.Verify(u.upload.Data)
		if err != nil {
			badContent = append(badContent, u.key)
			continue
		}
		checked = append(checked, checkedImage{role: u.key, data: u.upload.Data, format: format})
	}
	if len(badContent) > 0 {
		return nil, apperrors.NewValidationError("invalid image content", badContent...)
	}
	return checked, nil
}
