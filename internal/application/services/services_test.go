package services

import (
	"context"
	"errors"
	"mime/multipart"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arqon/siteapi/internal/adapters/repository"
	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/infrastructure/ratelimit"
	"github.com/arqon/siteapi/internal/ports"
)

type fakeImages struct {
	mu      sync.Mutex
	saved   []string
	removed []string
	err     error
}

func (f *fakeImages) Save(fh *multipart.FileHeader, subdir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	url := "/images/" + filepath.ToSlash(filepath.Join(subdir, fh.Filename))
	f.saved = append(f.saved, url)
	return url, nil
}

func (f *fakeImages) RemoveAsync(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, url)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Verify(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockNotifier) Notify(ctx context.Context, sub entities.ContactSubmission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

func (m *mockNotifier) Confirm(ctx context.Context, sub entities.ContactSubmission) error {
	return m.Called(ctx, sub).Error(0)
}

func strPtr(s string) *string { return &s }

func newProjectService(t *testing.T) (*ProjectService, *fakeImages) {
	t.Helper()
	store := repository.NewProjectStore(filepath.Join(t.TempDir(), "projects.json"), logger.NewNop())
	require.NoError(t, store.Init(context.Background()))
	images := &fakeImages{}
	return NewProjectService(repository.NewProjectRepository(store), images, logger.NewNop()), images
}

func newArticleService(t *testing.T) (*ArticleService, *fakeImages) {
	t.Helper()
	store := repository.NewArticleStore(filepath.Join(t.TempDir(), "articles.json"), logger.NewNop())
	require.NoError(t, store.Init(context.Background()))
	images := &fakeImages{}
	return NewArticleService(repository.NewArticleRepository(store), images, logger.NewNop()), images
}

func projectRequest() ports.CreateProjectRequest {
	return ports.CreateProjectRequest{
		Title:       "Residencial Aurora",
		Category:    "Residencial",
		Location:    "Curitiba, PR",
		Year:        "2023",
		Description: "Edifício de 12 pavimentos",
		ImageURL:    "https://cdn.example.com/aurora.jpg",
	}
}

func TestCreateProjectRequiresImage(t *testing.T) {
	svc, _ := newProjectService(t)
	req := projectRequest()
	req.ImageURL = ""

	_, err := svc.CreateProject(context.Background(), req, nil)
	assert.ErrorIs(t, err, entities.ErrMissingImage)
}

func TestCreateProjectPrefersUploadedImage(t *testing.T) {
	svc, images := newProjectService(t)

	project, err := svc.CreateProject(context.Background(), projectRequest(), &multipart.FileHeader{Filename: "aurora.png"})
	require.NoError(t, err)

	assert.Equal(t, 1, project.ID)
	assert.Equal(t, "/images/aurora.png", project.Image)
	assert.Equal(t, []string{"/images/aurora.png"}, images.saved)
}

func TestCreateProjectPropagatesUploadErrors(t *testing.T) {
	svc, images := newProjectService(t)
	images.err = entities.ErrUnsupportedUpload

	_, err := svc.CreateProject(context.Background(), projectRequest(), &multipart.FileHeader{Filename: "x.exe"})
	assert.ErrorIs(t, err, entities.ErrUnsupportedUpload)

	list, err := svc.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateProjectMergesOnlyProvidedFields(t *testing.T) {
	svc, _ := newProjectService(t)
	ctx := context.Background()
	created, err := svc.CreateProject(ctx, projectRequest(), nil)
	require.NoError(t, err)

	patch := ports.UpdateProjectRequest{Title: strPtr("Residencial Aurora II")}
	updated, err := svc.UpdateProject(ctx, created.ID, patch, nil)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Residencial Aurora II", updated.Title)
	assert.Equal(t, created.Location, updated.Location)
	assert.Equal(t, created.Image, updated.Image)

	again, err := svc.UpdateProject(ctx, created.ID, patch, nil)
	require.NoError(t, err)
	assert.Equal(t, updated, again)
}

func TestUpdateProjectRemovesReplacedUpload(t *testing.T) {
	svc, images := newProjectService(t)
	ctx := context.Background()
	created, err := svc.CreateProject(ctx, projectRequest(), &multipart.FileHeader{Filename: "old.png"})
	require.NoError(t, err)

	updated, err := svc.UpdateProject(ctx, created.ID, ports.UpdateProjectRequest{}, &multipart.FileHeader{Filename: "new.png"})
	require.NoError(t, err)

	assert.Equal(t, "/images/new.png", updated.Image)
	assert.Equal(t, []string{"/images/old.png"}, images.removed)
}

func TestUpdateProjectUnknownIDDiscardsUpload(t *testing.T) {
	svc, images := newProjectService(t)

	_, err := svc.UpdateProject(context.Background(), 42, ports.UpdateProjectRequest{}, &multipart.FileHeader{Filename: "new.png"})
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.Equal(t, []string{"/images/new.png"}, images.removed)
}

func TestDeleteProjectRemovesImage(t *testing.T) {
	svc, images := newProjectService(t)
	ctx := context.Background()
	created, err := svc.CreateProject(ctx, projectRequest(), nil)
	require.NoError(t, err)

	removed, err := svc.DeleteProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed.ID)
	assert.Equal(t, []string{created.Image}, images.removed)

	_, err = svc.GetProject(ctx, created.ID)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = svc.DeleteProject(ctx, created.ID)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestCreateArticleDefaultsDate(t *testing.T) {
	svc, _ := newArticleService(t)
	svc.now = func() time.Time { return time.Date(2024, 5, 12, 14, 30, 0, 0, time.UTC) }

	article, err := svc.CreateArticle(context.Background(), ports.CreateArticleRequest{
		Title:    "Concreto autoadensável",
		Content:  "Vantagens em obras verticais",
		Author:   "Equipe Técnica",
		Category: "Engenharia",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-05-12T14:30:00Z", article.Date)
	assert.Empty(t, article.ImageURL)
}

func TestUpdateArticleReplacesImage(t *testing.T) {
	svc, images := newArticleService(t)
	ctx := context.Background()
	created, err := svc.CreateArticle(ctx, ports.CreateArticleRequest{
		Title:    "BIM na prática",
		Content:  "Fluxos de projeto",
		Author:   "Ana",
		Category: "Tecnologia",
		Date:     "2024-01-01",
	}, &multipart.FileHeader{Filename: "bim.png"})
	require.NoError(t, err)
	assert.Equal(t, "/images/articles/bim.png", created.ImageURL)

	updated, err := svc.UpdateArticle(ctx, created.ID, ports.UpdateArticleRequest{
		ImageURL: strPtr("https://cdn.example.com/bim.jpg"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/bim.jpg", updated.ImageURL)
	assert.Equal(t, "2024-01-01", updated.Date)
	assert.Equal(t, []string{"/images/articles/bim.png"}, images.removed)

	list, err := svc.ListArticles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func submission() entities.ContactSubmission {
	return entities.ContactSubmission{
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Message:     "Gostaria de um orçamento.",
		IP:          "203.0.113.7",
		SubmittedAt: time.Now(),
	}
}

func newContactService(n *mockNotifier, limit int) *ContactService {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(0), "email", limit, time.Hour)
	return NewContactService(n, limiter, logger.NewNop())
}

func TestSubmitSendsNotificationAndConfirmation(t *testing.T) {
	n := &mockNotifier{}
	n.On("Verify", mock.Anything).Return(nil).Once()
	n.On("Notify", mock.Anything, mock.Anything).Return("abc@mail.example.com", nil)
	n.On("Confirm", mock.Anything, mock.Anything).Return(nil)
	svc := newContactService(n, 5)

	res, err := svc.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, "abc@mail.example.com", res.MessageID)

	_, err = svc.Submit(context.Background(), submission())
	require.NoError(t, err)

	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "Verify", 1)
	n.AssertNumberOfCalls(t, "Notify", 2)
}

func TestSubmitSwallowsConfirmationFailure(t *testing.T) {
	n := &mockNotifier{}
	n.On("Verify", mock.Anything).Return(nil)
	n.On("Notify", mock.Anything, mock.Anything).Return("id-1", nil)
	n.On("Confirm", mock.Anything, mock.Anything).Return(errors.New("mailbox unavailable"))
	svc := newContactService(n, 5)

	res, err := svc.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, "id-1", res.MessageID)
}

func TestSubmitVerifyFailureIsTransportError(t *testing.T) {
	n := &mockNotifier{}
	n.On("Verify", mock.Anything).Return(errors.New("535 authentication failed")).Once()
	n.On("Verify", mock.Anything).Return(nil)
	n.On("Notify", mock.Anything, mock.Anything).Return("id-2", nil)
	n.On("Confirm", mock.Anything, mock.Anything).Return(nil)
	svc := newContactService(n, 5)

	_, err := svc.Submit(context.Background(), submission())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	_, err = svc.Submit(context.Background(), submission())
	assert.NoError(t, err)
}

func TestSubmitNotifyFailureIsTransportError(t *testing.T) {
	n := &mockNotifier{}
	n.On("Verify", mock.Anything).Return(nil)
	n.On("Notify", mock.Anything, mock.Anything).Return("", errors.New("connection reset"))
	svc := newContactService(n, 5)

	_, err := svc.Submit(context.Background(), submission())
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	n.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
}

func TestSubmitLimitsPerEmail(t *testing.T) {
	n := &mockNotifier{}
	n.On("Verify", mock.Anything).Return(nil)
	n.On("Notify", mock.Anything, mock.Anything).Return("id", nil)
	n.On("Confirm", mock.Anything, mock.Anything).Return(nil)
	svc := newContactService(n, 5)

	for i := 0; i < 5; i++ {
		_, err := svc.Submit(context.Background(), submission())
		require.NoError(t, err)
	}

	_, err := svc.Submit(context.Background(), submission())
	var limited *RateLimitError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, 0)
	n.AssertNumberOfCalls(t, "Notify", 5)

	other := submission()
	other.Email = "joao@example.com"
	_, err = svc.Submit(context.Background(), other)
	assert.NoError(t, err)
}

func TestHealthReportsTransportState(t *testing.T) {
	n := &mockNotifier{}
	n.On("Verify", mock.Anything).Return(errors.New("dial tcp: timeout")).Once()
	n.On("Verify", mock.Anything).Return(nil)
	svc := newContactService(n, 5)

	assert.Error(t, svc.Health(context.Background()))
	assert.NoError(t, svc.Health(context.Background()))
}
