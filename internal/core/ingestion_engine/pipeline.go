package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"studyvault/internal/core"
	"studyvault/internal/core/loader"
	"studyvault/internal/core/outline"
	"studyvault/internal/core/textutil"
	"studyvault/internal/models"
)

// headSizeTolerance is the relative slack allowed between the declared file
// size and what HEAD reports; store-side metadata can pad the object. After
// the full download the match must be exact.
const headSizeTolerance = 0.01

// Config tunes the pipeline.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Pipeline drives one upload session from completion signal to a READY
// material, compensating external side effects when a late step fails.
type Pipeline struct {
	db       core.DbClient
	obj      core.ObjectClient
	index    core.VectorIndex
	loader   core.DocumentLoader
	analyzer core.AnalysisProvider
	splitter textutil.Splitter
}

func NewPipeline(dbc core.DbClient, obj core.ObjectClient, index core.VectorIndex, ld core.DocumentLoader, analyzer core.AnalysisProvider, cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Pipeline{
		db:       dbc,
		obj:      obj,
		index:    index,
		loader:   ld,
		analyzer: analyzer,
		splitter: textutil.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	}
}

// CompleteUpload runs the full verification/dedup/promotion/indexing pipeline
// for one session. sink may be nil. On any failure after storage promotion the
// provisional material's side effects are rolled back before the original
// error is returned.
func (p *Pipeline) CompleteUpload(ctx context.Context, userID, sessionID, expectedETag string, sink ProgressSink) (*models.Material, error) {
	report(sink, StepPreparing)

	sess, err := p.db.GetUploadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load upload session: %w", err)
	}
	if sess == nil {
		return nil, core.Errf(core.CodeNotFound, "upload session not found: %s", sessionID)
	}
	if sess.Status == models.UploadCompleted {
		return nil, core.Errf(core.CodeAlreadyCompleted, "upload session already completed: %s", sessionID)
	}
	if time.Now().After(sess.ExpiresAt) {
		p.failSession(sessionID, models.UploadExpired, "upload session expired")
		return nil, core.Errf(core.CodeExpired, "upload session expired: %s", sessionID)
	}

	report(sink, StepVerifying)
	if err := p.verifyObject(ctx, sess, expectedETag); err != nil {
		return nil, err
	}

	report(sink, StepLoading)
	data, err := p.obj.GetFile(ctx, sess.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("download uploaded object: %w", err)
	}
	if int64(len(data)) != sess.FileSize {
		msg := fmt.Sprintf("downloaded %d bytes, expected %d", len(data), sess.FileSize)
		p.failSession(sessionID, models.UploadFailed, msg)
		return nil, core.Errf(core.CodeSizeMismatch, "%s", msg)
	}

	report(sink, StepChecking)
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	existing, err := p.db.GetMaterialByChecksum(ctx, userID, checksum)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		p.failSession(sessionID, models.UploadFailed, "duplicate of material "+existing.ID)
		if derr := p.obj.DeleteFile(ctx, sess.ObjectKey); derr != nil {
			log.Printf("Pipeline: temp object cleanup after duplicate failed: %v", derr)
		}
		return nil, core.Errf(core.CodeMaterialDuplicate, "identical material already exists").
			WithDetail("material_id", existing.ID)
	}

	report(sink, StepStoring)
	kind, err := loader.DetectKind(sess.MimeType, sess.OriginalFilename)
	if err != nil {
		// Supports() passed at initiation; an unresolvable kind here is internal.
		p.failSession(sessionID, models.UploadFailed, "unresolvable source type")
		return nil, core.WrapErr(core.CodeInvalidState, err, "unresolvable source type after verification")
	}

	materialID := uuid.NewString()
	now := time.Now()
	finalKey := fmt.Sprintf("users/%s/materials/%d/%02d/%s%s",
		userID, now.Year(), int(now.Month()), materialID, strings.ToLower(filepath.Ext(sess.OriginalFilename)))

	if err := p.obj.Copy(ctx, sess.ObjectKey, finalKey, sess.MimeType); err != nil {
		p.failSession(sessionID, models.UploadFailed, "storage promotion failed")
		return nil, fmt.Errorf("promote object: %w", err)
	}

	// The material is provisional from here on: every later failure must
	// compensate the promoted object, the index and the material row.
	comp := &compensation{
		tempKey:    sess.ObjectKey,
		finalKey:   finalKey,
		userID:     userID,
		materialID: materialID,
		sessionID:  sessionID,
	}

	if err := p.obj.DeleteFile(ctx, sess.ObjectKey); err != nil {
		return nil, p.compensate(fmt.Errorf("delete temp object: %w", err), comp)
	}

	report(sink, StepAnalyzing)
	mat, err := p.analyzeAndIndex(ctx, sess, data, string(kind), materialID, finalKey, checksum, sink)
	if err != nil {
		return nil, p.compensate(err, comp)
	}

	report(sink, StepCompleted)
	return mat, nil
}

// verifyObject runs the HEAD-time integrity checks. Any violation is terminal
// for the session.
func (p *Pipeline) verifyObject(ctx context.Context, sess *models.UploadSession, expectedETag string) error {
	info, err := p.obj.Head(ctx, sess.ObjectKey)
	if core.IsCode(err, core.CodeObjectNotFound) {
		p.failSession(sess.ID, models.UploadFailed, "uploaded object not found")
		return err
	}
	if err != nil {
		return fmt.Errorf("head uploaded object: %w", err)
	}

	diff := info.Size - sess.FileSize
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) > headSizeTolerance*float64(sess.FileSize) {
		msg := fmt.Sprintf("stored object is %d bytes, declared %d", info.Size, sess.FileSize)
		p.failSession(sess.ID, models.UploadFailed, msg)
		return core.Errf(core.CodeSizeMismatch, "%s", msg)
	}

	if info.ContentType != "" &&
		loader.NormalizeMime(info.ContentType) != loader.NormalizeMime(sess.MimeType) {
		msg := fmt.Sprintf("stored content type %q, declared %q", info.ContentType, sess.MimeType)
		p.failSession(sess.ID, models.UploadFailed, msg)
		return core.Errf(core.CodeContentTypeMismatch, "%s", msg)
	}

	if expectedETag != "" && info.ETag != "" &&
		normalizeETag(expectedETag) != normalizeETag(info.ETag) {
		p.failSession(sess.ID, models.UploadFailed, "entity tag mismatch")
		return core.Errf(core.CodeETagMismatch, "entity tag mismatch")
	}

	if err := p.db.RecordUploadSessionETag(ctx, sess.ID, normalizeETag(info.ETag)); err != nil {
		log.Printf("Pipeline: record session etag failed: %v", err)
	}
	return nil
}

// analyzeAndIndex parses the document, runs the analyzer and the chunk/index
// stages, and commits the finalize transaction.
func (p *Pipeline) analyzeAndIndex(ctx context.Context, sess *models.UploadSession, data []byte, sourceType, materialID, finalKey, checksum string, sink ProgressSink) (*models.Material, error) {
	frags, err := p.loader.Load(data, sess.MimeType, sess.OriginalFilename)
	if err != nil {
		return nil, err
	}

	var fullText strings.Builder
	for _, f := range frags {
		fullText.WriteString(f.Text)
		fullText.WriteString("\n")
	}
	normalized := textutil.NormalizeText(fullText.String())
	if normalized == "" {
		return nil, core.Errf(core.CodeParseFailed, "document contains no extractable text")
	}

	// Analysis and the chunk/index precursor have no ordering dependency;
	// run them concurrently.
	g, gctx := errgroup.WithContext(ctx)

	var analysis *models.DocumentAnalysis
	g.Go(func() error {
		a, err := p.analyzer.Analyze(gctx, normalized, sess.MimeType)
		if err != nil {
			return fmt.Errorf("analyze document: %w", err)
		}
		analysis = a
		return nil
	})

	var candidates []textutil.Candidate
	g.Go(func() error {
		candidates = p.splitter.SplitFragments(frags)
		if len(candidates) == 0 {
			return core.Errf(core.CodeChunkFailed, "no chunks survived splitting")
		}
		return p.index.DeleteMaterialChunks(gctx, sess.UserID, materialID)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	reportPct(sink, StepAnalyzing, 75)

	title := textutil.NormalizeText(analysis.Title)
	if title == "" {
		title = strings.TrimSuffix(sess.OriginalFilename, filepath.Ext(sess.OriginalFilename))
	}
	summary := textutil.NormalizeText(analysis.Summary)

	docs := make([]models.ChunkDocument, len(candidates))
	for i, c := range candidates {
		docs[i] = models.ChunkDocument{
			ID:      uuid.NewString(),
			Content: c.Text,
			Metadata: models.ChunkMetadata{
				UserID:           sess.UserID,
				MaterialID:       materialID,
				MaterialTitle:    title,
				OriginalFilename: sess.OriginalFilename,
				MimeType:         sess.MimeType,
				Source:           "material",
				ChunkIndex:       i,
				PageNumber:       c.PageNumber,
			},
		}
	}
	if err := p.index.UpsertChunks(ctx, docs); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	reportPct(sink, StepAnalyzing, 90)

	report(sink, StepFinalizing)
	processedAt := time.Now()
	mat := &models.Material{
		ID:               materialID,
		UserID:           sess.UserID,
		SourceType:       sourceType,
		Title:            title,
		OriginalFilename: sess.OriginalFilename,
		StorageProvider:  "s3",
		StorageKey:       finalKey,
		MimeType:         sess.MimeType,
		FileSize:         sess.FileSize,
		Checksum:         checksum,
		ProcessingStatus: models.MaterialReady,
		ProcessedAt:      &processedAt,
		Summary:          summary,
	}
	nodes := outline.Flatten(materialID, analysis)
	if err := p.db.FinalizeIngestion(ctx, mat, nodes, sess.ID); err != nil {
		return nil, fmt.Errorf("finalize ingestion: %w", err)
	}
	return mat, nil
}

// compensation tracks the external side effects a failed run must undo.
type compensation struct {
	tempKey    string
	finalKey   string
	userID     string
	materialID string
	sessionID  string
}

// compensate runs the ordered cleanup actions. Each action's own failure is
// logged and swallowed so one broken cleanup cannot mask the original error
// or leave the remaining resources orphaned. Always returns origErr.
func (p *Pipeline) compensate(origErr error, c *compensation) error {
	log.Printf("Pipeline: ingestion failed for material %s, compensating: %v", c.materialID, origErr)

	// Fresh context: the caller's may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	actions := []struct {
		name string
		run  func(context.Context) error
	}{
		{"delete temp object", func(ctx context.Context) error {
			return p.obj.DeleteFile(ctx, c.tempKey)
		}},
		{"delete final object", func(ctx context.Context) error {
			return p.obj.DeleteFile(ctx, c.finalKey)
		}},
		{"delete index entries", func(ctx context.Context) error {
			return p.index.DeleteMaterialChunks(ctx, c.userID, c.materialID)
		}},
		{"delete material row", func(ctx context.Context) error {
			return p.db.DeleteMaterialHard(ctx, c.materialID)
		}},
		{"mark session failed", func(ctx context.Context) error {
			return p.db.UpdateUploadSessionStatus(ctx, c.sessionID, models.UploadFailed, origErr.Error())
		}},
	}
	for _, a := range actions {
		if err := a.run(ctx); err != nil {
			log.Printf("Pipeline: cleanup %q failed: %v", a.name, err)
		}
	}
	return origErr
}

// failSession marks a session terminal before promotion; best effort.
func (p *Pipeline) failSession(sessionID, status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.db.UpdateUploadSessionStatus(ctx, sessionID, status, message); err != nil {
		log.Printf("Pipeline: mark session %s %s failed: %v", sessionID, status, err)
	}
}

func normalizeETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}
