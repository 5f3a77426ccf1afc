package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory stand-in for repository.Collection.
type memStore[T any, PT interface {
	*T
	models.Document
}] struct {
	mu      sync.Mutex
	docs    map[primitive.ObjectID]T
	order   []primitive.ObjectID
	visible func(*T) bool
}

func newMemStore[T any, PT interface {
	*T
	models.Document
}]() *memStore[T, PT] {
	return &memStore[T, PT]{docs: map[primitive.ObjectID]T{}}
}

func (s *memStore[T, PT]) get(id primitive.ObjectID) (*T, bool) {
	doc, ok := s.docs[id]
	if !ok || (s.visible != nil && !s.visible(&doc)) {
		return nil, false
	}
	return &doc, true
}

func (s *memStore[T, PT]) FindByID(_ context.Context, id primitive.ObjectID) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (s *memStore[T, PT]) Find(_ context.Context, f *utils.APIFeatures) ([]T, error) {
	if err := f.Err(); err != nil {
		return nil, err
	}
	return s.all(), nil
}

func (s *memStore[T, PT]) all() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []T{}
	for _, id := range s.order {
		if doc, ok := s.get(id); ok {
			out = append(out, *doc)
		}
	}
	return out
}

func (s *memStore[T, PT]) Create(_ context.Context, doc *T) error {
	p := PT(doc)
	if h, ok := any(p).(models.BeforeSaver); ok {
		if err := h.BeforeSave(true); err != nil {
			return err
		}
	}
	if err := models.Validate(p); err != nil {
		return err
	}
	if p.DocID().IsZero() {
		p.SetDocID(primitive.NewObjectID())
	}
	s.put(*doc)
	return nil
}

func (s *memStore[T, PT]) put(doc T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := PT(&doc).DocID()
	if _, ok := s.docs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.docs[id] = doc
}

func (s *memStore[T, PT]) Update(ctx context.Context, id primitive.ObjectID, patch []byte) (*T, error) {
	doc, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, doc); err != nil {
			return nil, err
		}
	}
	PT(doc).SetDocID(id)
	if err := s.Save(ctx, doc, true); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *memStore[T, PT]) Save(_ context.Context, doc *T, validate bool) error {
	p := PT(doc)
	if h, ok := any(p).(models.BeforeSaver); ok {
		if err := h.BeforeSave(false); err != nil {
			return err
		}
	}
	if validate {
		if err := models.Validate(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	_, ok := s.get(p.DocID())
	s.mu.Unlock()
	if !ok {
		return repository.ErrNotFound
	}
	s.put(*doc)
	return nil
}

func (s *memStore[T, PT]) Delete(_ context.Context, id primitive.ObjectID) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.docs, id)
	return doc, nil
}

type fakeTours struct {
	*memStore[models.Tour, *models.Tour]
	stats     []repository.TourStats
	plan      []repository.MonthlyPlan
	planYear  int
	within    []models.Tour
	distances []repository.TourDistance
}

func (f *fakeTours) FindWithReviews(ctx context.Context, id primitive.ObjectID) (*models.Tour, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeTours) Stats(context.Context) ([]repository.TourStats, error) {
	return f.stats, nil
}

func (f *fakeTours) MonthlyPlan(_ context.Context, year int) ([]repository.MonthlyPlan, error) {
	f.planYear = year
	return f.plan, nil
}

func (f *fakeTours) Within(context.Context, float64, float64, float64) ([]models.Tour, error) {
	return f.within, nil
}

func (f *fakeTours) Distances(context.Context, float64, float64, float64) ([]repository.TourDistance, error) {
	return f.distances, nil
}

type fakeUsers struct {
	*memStore[models.User, *models.User]
}

func newFakeUsers() *fakeUsers {
	s := newMemStore[models.User]()
	s.visible = func(u *models.User) bool { return u.Active }
	return &fakeUsers{s}
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.all() {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByResetToken(_ context.Context, token string) (*models.User, error) {
	hashed := models.HashToken(token)
	for _, u := range f.all() {
		if u.PasswordResetToken == hashed && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(time.Now()) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) Deactivate(ctx context.Context, id primitive.ObjectID) error {
	u, err := f.FindByID(ctx, id)
	if err != nil {
		return err
	}
	u.Active = false
	f.put(*u)
	return nil
}

type fakeBookings struct {
	*memStore[models.Booking, *models.Booking]
}

func (f *fakeBookings) FindByUser(_ context.Context, userID primitive.ObjectID) ([]models.Booking, error) {
	out := []models.Booking{}
	for _, b := range f.all() {
		if b.User == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeMailer struct {
	mu        sync.Mutex
	err       error
	welcomes  []string
	resetURLs []string
}

func (m *fakeMailer) SendWelcome(_ context.Context, u *models.User, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, u.Email)
	return m.err
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _ *models.User, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetURLs = append(m.resetURLs, url)
	return m.err
}
