// Package ingest turns one submission into a durable work record plus its two
// image assets, or leaves no referenced trace behind.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/logging"
	"lhtl/internal/works"
)

// ContentStore is the subset of the store the pipeline writes through.
type ContentStore interface {
	PutAsset(ctx context.Context, data []byte, role, ext string) (string, error)
	RemoveAsset(filename string)
	Append(ctx context.Context, rec works.Record) error
}

// Observer receives one call per finished submission.
type Observer interface {
	ObserveSubmission(outcome string, duration time.Duration)
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.OrNop(logger)
	}
}

// WithObserver attaches a submission observer.
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// Pipeline is the ingestion pipeline.
type Pipeline struct {
	store    ContentStore
	logger   logging.Logger
	observer Observer
	newID    func() string
}

// NewPipeline builds a pipeline writing through store.
func NewPipeline(store ContentStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: logging.NewComponentLogger("Ingest"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates sub, persists both assets and appends the record. It
// returns the new record id. Any failure after the first asset write removes
// every asset this call wrote.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (id string, err error) {
	start := time.Now()
	defer func() { p.observe(err, start) }()
	logger := logging.FromContext(ctx, p.logger)

	images, err := validate(sub)
	if err != nil {
		logger.Info("Rejected submission: %v", err)
		return "", err
	}

	var written []string
	rollback := func(cause error) {
		for _, name := range written {
			p.store.RemoveAsset(name)
		}
		logger.Error("Submission failed, rolled back %d asset(s): %v", len(written), cause)
	}

	filenames := make(map[string]string, len(images))
	for _, img := range images {
		name, putErr := p.store.PutAsset(ctx, img.data, img.role, img.format.Ext())
		if putErr != nil {
			rollback(putErr)
			return "", putErr
		}
		written = append(written, name)
		filenames[img.role] = name
		logger.Debug("Saved %s asset %s (%d bytes)", img.role, name, len(img.data))
	}

	rec := works.Record{
		ID:                p.newID(),
		Author:            strings.TrimSpace(sub.Author),
		CurrentHabits:     strings.TrimSpace(sub.Habits),
		Reflection:        strings.TrimSpace(sub.Reflection),
		ScorecardFilename: filenames[FileScorecard],
		ComicFilename:     filenames[FileComic],
	}
	if appendErr := p.store.Append(ctx, rec); appendErr != nil {
		rollback(appendErr)
		return "", appendErr
	}

	logger.Info("Stored work %s by %q", rec.ID, rec.Author)
	return rec.ID, nil
}

func (p *Pipeline) observe(err error, start time.Time) {
	if p.observer == nil {
		return
	}
	outcome := "created"
	if err != nil {
		outcome = apperrors.KindOf(err).String()
	}
	p.observer.ObserveSubmission(outcome, time.Since(start))
}
