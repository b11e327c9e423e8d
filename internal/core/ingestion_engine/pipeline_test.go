package ingestion_engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/core"
	"studyvault/internal/core/loader"
	"studyvault/internal/models"
)

// --- fakes ---

type statusUpdate struct {
	id      string
	status  string
	message string
}

type fakeDB struct {
	sessions    map[string]*models.UploadSession
	byChecksum  map[string]*models.Material
	finalized   *models.Material
	finalNodes  []models.OutlineNode
	finalizeErr error
	hardDeleted []string
	updates     []statusUpdate
	etag        string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		sessions:   make(map[string]*models.UploadSession),
		byChecksum: make(map[string]*models.Material),
	}
}

func (f *fakeDB) CreateUser(context.Context, *models.User) error { return nil }
func (f *fakeDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, nil
}
func (f *fakeDB) CreateUploadSession(_ context.Context, s *models.UploadSession) error {
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeDB) GetUploadSession(_ context.Context, userID, id string) (*models.UploadSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}
func (f *fakeDB) UpdateUploadSessionStatus(_ context.Context, id, status, msg string) error {
	f.updates = append(f.updates, statusUpdate{id, status, msg})
	if s, ok := f.sessions[id]; ok {
		s.Status = status
		s.ErrorMessage = msg
	}
	return nil
}
func (f *fakeDB) RecordUploadSessionETag(_ context.Context, id, etag string) error {
	f.etag = etag
	return nil
}
func (f *fakeDB) GetMaterialByID(context.Context, string, string) (*models.Material, error) {
	return nil, nil
}
func (f *fakeDB) GetMaterialByChecksum(_ context.Context, userID, checksum string) (*models.Material, error) {
	m, ok := f.byChecksum[checksum]
	if !ok || m.UserID != userID {
		return nil, nil
	}
	return m, nil
}
func (f *fakeDB) ListMaterialsByUser(context.Context, string) ([]models.Material, error) {
	return nil, nil
}
func (f *fakeDB) DeleteMaterialHard(_ context.Context, id string) error {
	f.hardDeleted = append(f.hardDeleted, id)
	return nil
}
func (f *fakeDB) SoftDeleteMaterial(context.Context, string, string) error { return nil }
func (f *fakeDB) FinalizeIngestion(_ context.Context, mat *models.Material, nodes []models.OutlineNode, sessionID string) error {
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = mat
	f.finalNodes = nodes
	if s, ok := f.sessions[sessionID]; ok {
		s.Status = models.UploadCompleted
		s.MaterialID = mat.ID
	}
	return nil
}
func (f *fakeDB) ListOutlineNodes(context.Context, string) ([]models.OutlineNode, error) {
	return nil, nil
}
func (f *fakeDB) CreateMaterialJob(context.Context, *models.MaterialJob) error { return nil }
func (f *fakeDB) GetMaterialJob(context.Context, string, string) (*models.MaterialJob, error) {
	return nil, nil
}
func (f *fakeDB) UpdateMaterialJobProgress(context.Context, string, string, int) error { return nil }
func (f *fakeDB) FinishMaterialJob(context.Context, string, string, int, string, string) error {
	return nil
}
func (f *fakeDB) Close() error { return nil }

type fakeObject struct {
	objects  map[string][]byte
	headInfo map[string]core.ObjectInfo
	deletes  []string
	copyErr  error
}

func newFakeObject() *fakeObject {
	return &fakeObject{
		objects:  make(map[string][]byte),
		headInfo: make(map[string]core.ObjectInfo),
	}
}

func (f *fakeObject) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "https://example.test/upload", nil
}
func (f *fakeObject) Head(_ context.Context, key string) (*core.ObjectInfo, error) {
	if info, ok := f.headInfo[key]; ok {
		return &info, nil
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, core.Errf(core.CodeObjectNotFound, "object not found: %s", key)
	}
	return &core.ObjectInfo{Size: int64(len(data))}, nil
}
func (f *fakeObject) GetFile(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, core.Errf(core.CodeObjectNotFound, "object not found: %s", key)
	}
	return data, nil
}
func (f *fakeObject) Copy(_ context.Context, srcKey, dstKey, _ string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	data, ok := f.objects[srcKey]
	if !ok {
		return core.Errf(core.CodeObjectNotFound, "object not found: %s", srcKey)
	}
	f.objects[dstKey] = data
	return nil
}
func (f *fakeObject) DeleteFile(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	delete(f.objects, key)
	return nil
}

type fakeAnalyzer struct {
	analysis *models.DocumentAnalysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string) (*models.DocumentAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type fakeIndex struct {
	upserted  []models.ChunkDocument
	deleted   []string
	upsertErr error
}

func (f *fakeIndex) UpsertChunks(_ context.Context, docs []models.ChunkDocument) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, docs...)
	return nil
}
func (f *fakeIndex) DeleteMaterialChunks(_ context.Context, _, materialID string) error {
	f.deleted = append(f.deleted, materialID)
	var kept []models.ChunkDocument
	for _, d := range f.upserted {
		if d.Metadata.MaterialID != materialID {
			kept = append(kept, d)
		}
	}
	f.upserted = kept
	return nil
}
func (f *fakeIndex) Search(context.Context, string, string, int, []string) ([]models.SearchHit, error) {
	return nil, nil
}
func (f *fakeIndex) FetchChunkRange(context.Context, string, string, int, int) ([]models.ChunkDocument, error) {
	return nil, nil
}
func (f *fakeIndex) CountChunks(context.Context, string, []string) (map[string]int, error) {
	return nil, nil
}

// --- fixtures ---

const testUser = "user-1"
const testSession = "sess-1"
const testTempKey = "uploads/tmp/user-1/sess-1/notes.txt"

type testEnv struct {
	db       *fakeDB
	obj      *fakeObject
	index    *fakeIndex
	analyzer *fakeAnalyzer
	pipeline *Pipeline
}

func newTestEnv(content []byte) *testEnv {
	db := newFakeDB()
	obj := newFakeObject()
	index := &fakeIndex{}
	analyzer := &fakeAnalyzer{
		analysis: &models.DocumentAnalysis{
			Title:   "Linear Algebra Notes",
			Summary: "Vectors and matrices.",
			Outline: []models.OutlineItem{
				{Title: "Vectors", Children: []models.OutlineItem{{Title: "Dot product"}}},
			},
		},
	}

	db.sessions[testSession] = &models.UploadSession{
		ID:               testSession,
		UserID:           testUser,
		Status:           models.UploadInitiated,
		ObjectKey:        testTempKey,
		OriginalFilename: "notes.txt",
		MimeType:         "text/plain",
		FileSize:         int64(len(content)),
		ExpiresAt:        time.Now().Add(30 * time.Minute),
	}
	obj.objects[testTempKey] = content

	return &testEnv{
		db:       db,
		obj:      obj,
		index:    index,
		analyzer: analyzer,
		pipeline: NewPipeline(db, obj, index, loader.New(), analyzer, nil),
	}
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// --- tests ---

func TestCompleteUploadHappyPath(t *testing.T) {
	content := []byte("Vectors have magnitude and direction. The dot product measures alignment.")
	env := newTestEnv(content)

	var seen []Step
	var percents []int
	sink := func(step Step, percent int) {
		seen = append(seen, step)
		percents = append(percents, percent)
	}

	mat, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", sink)
	require.NoError(t, err)
	require.NotNil(t, mat)

	assert.Equal(t, models.MaterialReady, mat.ProcessingStatus)
	assert.Equal(t, "Linear Algebra Notes", mat.Title)
	assert.Equal(t, "Vectors and matrices.", mat.Summary)
	assert.Equal(t, checksumOf(content), mat.Checksum)
	assert.Equal(t, string(loader.KindText), mat.SourceType)
	require.NotNil(t, mat.ProcessedAt)

	// One transactional finalize with the flattened outline.
	require.NotNil(t, env.db.finalized)
	assert.Equal(t, mat.ID, env.db.finalized.ID)
	require.NotEmpty(t, env.db.finalNodes)
	assert.Equal(t, "0", env.db.finalNodes[0].Path)

	// Temp object gone, final object present under the dated layout.
	assert.NotContains(t, env.obj.objects, testTempKey)
	require.Contains(t, env.obj.objects, mat.StorageKey)
	assert.True(t, strings.HasPrefix(mat.StorageKey, "users/"+testUser+"/materials/"))
	assert.True(t, strings.HasSuffix(mat.StorageKey, ".txt"))
	assert.Equal(t, content, env.obj.objects[mat.StorageKey])

	// Chunks carry complete metadata with contiguous indexes.
	require.NotEmpty(t, env.index.upserted)
	for i, doc := range env.index.upserted {
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, i, doc.Metadata.ChunkIndex)
		assert.Equal(t, testUser, doc.Metadata.UserID)
		assert.Equal(t, mat.ID, doc.Metadata.MaterialID)
		assert.Equal(t, "Linear Algebra Notes", doc.Metadata.MaterialTitle)
		assert.Equal(t, "material", doc.Metadata.Source)
	}

	// Progress moves forward only and terminates at COMPLETED.
	require.NotEmpty(t, seen)
	assert.Equal(t, StepPreparing, seen[0])
	assert.Equal(t, StepCompleted, seen[len(seen)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
}

func TestCompleteUploadSessionNotFound(t *testing.T) {
	env := newTestEnv([]byte("text"))

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, "missing", "", nil)
	assert.True(t, core.IsCode(err, core.CodeNotFound))

	_, err = env.pipeline.CompleteUpload(context.Background(), "someone-else", testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeNotFound), "foreign session must look absent")
}

func TestCompleteUploadAlreadyCompleted(t *testing.T) {
	env := newTestEnv([]byte("text"))
	env.db.sessions[testSession].Status = models.UploadCompleted

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeAlreadyCompleted))
}

func TestCompleteUploadExpired(t *testing.T) {
	env := newTestEnv([]byte("text"))
	env.db.sessions[testSession].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeExpired))
	assert.Equal(t, models.UploadExpired, env.db.sessions[testSession].Status)
}

func TestHeadSizeWithinTolerance(t *testing.T) {
	content := bytes.Repeat([]byte("size tolerance check. "), 500) // 11000 bytes
	env := newTestEnv(content)
	// Store-side metadata pads the object under one percent.
	env.obj.headInfo[testTempKey] = core.ObjectInfo{Size: int64(len(content)) + 100}

	mat, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.MaterialReady, mat.ProcessingStatus)
}

func TestHeadSizeBeyondTolerance(t *testing.T) {
	content := bytes.Repeat([]byte("size tolerance check. "), 500)
	env := newTestEnv(content)
	env.obj.headInfo[testTempKey] = core.ObjectInfo{Size: int64(float64(len(content)) * 1.02)}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeSizeMismatch))
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestDownloadedSizeMustMatchExactly(t *testing.T) {
	content := bytes.Repeat([]byte("exact match check. "), 500)
	env := newTestEnv(content)
	// HEAD agrees with the declared size, the actual bytes do not.
	declared := int64(len(content)) + 20
	env.db.sessions[testSession].FileSize = declared
	env.obj.headInfo[testTempKey] = core.ObjectInfo{Size: declared}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeSizeMismatch))
}

func TestContentTypeMismatch(t *testing.T) {
	content := []byte("text")
	env := newTestEnv(content)
	env.obj.headInfo[testTempKey] = core.ObjectInfo{
		Size:        int64(len(content)),
		ContentType: "application/pdf",
	}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeContentTypeMismatch))
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestContentTypeParametersIgnored(t *testing.T) {
	content := []byte("plain text with a charset parameter on the stored object")
	env := newTestEnv(content)
	env.obj.headInfo[testTempKey] = core.ObjectInfo{
		Size:        int64(len(content)),
		ContentType: "text/plain; charset=utf-8",
	}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	require.NoError(t, err)
}

func TestETagMismatch(t *testing.T) {
	content := []byte("text")
	env := newTestEnv(content)
	env.obj.headInfo[testTempKey] = core.ObjectInfo{
		Size: int64(len(content)),
		ETag: `"stored-etag"`,
	}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "client-etag", nil)
	assert.True(t, core.IsCode(err, core.CodeETagMismatch))
}

func TestETagQuotesNormalized(t *testing.T) {
	content := []byte("quoted etag comparison content")
	env := newTestEnv(content)
	env.obj.headInfo[testTempKey] = core.ObjectInfo{
		Size: int64(len(content)),
		ETag: `"abc123"`,
	}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "abc123", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", env.db.etag)
}

func TestDuplicateMaterial(t *testing.T) {
	content := []byte("the same bytes uploaded twice")
	env := newTestEnv(content)
	env.db.byChecksum[checksumOf(content)] = &models.Material{
		ID:     "existing-material",
		UserID: testUser,
	}

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeMaterialDuplicate))

	var ce *core.CodedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "existing-material", ce.Detail["material_id"])

	// Temp object removed, no second material created, session failed.
	assert.NotContains(t, env.obj.objects, testTempKey)
	assert.Nil(t, env.db.finalized)
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestUploadedObjectMissing(t *testing.T) {
	env := newTestEnv([]byte("text"))
	delete(env.obj.objects, testTempKey)

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeObjectNotFound))
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestEmptyDocumentFailsParse(t *testing.T) {
	env := newTestEnv([]byte("   \n\t  \n"))

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	assert.True(t, core.IsCode(err, core.CodeParseFailed))
	// Parse runs after promotion, so the compensations must have fired.
	assert.Empty(t, env.obj.objects)
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestCompensationOnIndexFailure(t *testing.T) {
	content := []byte("content that reaches the indexing stage before the failure")
	env := newTestEnv(content)
	env.index.upsertErr = errors.New("connection reset")

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	// Every external side effect is rolled back.
	assert.Empty(t, env.obj.objects, "temp and final objects must both be gone")
	assert.Empty(t, env.index.upserted)
	require.Len(t, env.db.hardDeleted, 1)
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
	assert.Nil(t, env.db.finalized)
}

func TestCompensationOnFinalizeFailure(t *testing.T) {
	content := []byte("content that reaches the finalize transaction before the failure")
	env := newTestEnv(content)
	env.db.finalizeErr = errors.New("deadlock detected")

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "deadlock detected")

	assert.Empty(t, env.obj.objects)
	assert.Empty(t, env.index.upserted, "chunks written before the failure must be purged")
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestAnalyzerFailureCompensates(t *testing.T) {
	content := []byte("content the analyzer rejects")
	env := newTestEnv(content)
	env.analyzer.err = errors.New("model overloaded")

	_, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	require.Error(t, err)
	assert.Empty(t, env.obj.objects)
	assert.Equal(t, models.UploadFailed, env.db.sessions[testSession].Status)
}

func TestTitleFallsBackToFilename(t *testing.T) {
	content := []byte("document whose analyzer returns no usable title")
	env := newTestEnv(content)
	env.analyzer.analysis.Title = "   "

	mat, err := env.pipeline.CompleteUpload(context.Background(), testUser, testSession, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "notes", mat.Title)
}
