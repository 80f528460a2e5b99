// Package mocks provides in-memory implementations of the storage and
// search contracts for service and handler tests.
package mocks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
)

type state struct {
	seq         map[string]int64
	users       map[int64]*models.User
	articles    map[int64]*models.Article
	articleTags map[int64]map[int64]bool
	categories  map[int64]*models.Category
	tags        map[int64]*models.Tag
	audit       map[models.EntityType][]*models.AuditEntry
	jobs        map[string]*models.Job
	jobErrors   map[string][]models.JobError
}

func newState() *state {
	return &state{
		seq:         make(map[string]int64),
		users:       make(map[int64]*models.User),
		articles:    make(map[int64]*models.Article),
		articleTags: make(map[int64]map[int64]bool),
		categories:  make(map[int64]*models.Category),
		tags:        make(map[int64]*models.Tag),
		audit:       make(map[models.EntityType][]*models.AuditEntry),
		jobs:        make(map[string]*models.Job),
		jobErrors:   make(map[string][]models.JobError),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	for id, a := range s.articles {
		cp := *a
		cp.Tags = nil
		c.articles[id] = &cp
	}
	for id, links := range s.articleTags {
		set := make(map[int64]bool, len(links))
		for tagID := range links {
			set[tagID] = true
		}
		c.articleTags[id] = set
	}
	for id, cat := range s.categories {
		cp := *cat
		c.categories[id] = &cp
	}
	for id, t := range s.tags {
		cp := *t
		c.tags[id] = &cp
	}
	for entity, entries := range s.audit {
		list := make([]*models.AuditEntry, len(entries))
		for i, e := range entries {
			cp := *e
			list[i] = &cp
		}
		c.audit[entity] = list
	}
	for id, j := range s.jobs {
		cp := *j
		c.jobs[id] = &cp
	}
	for id, errs := range s.jobErrors {
		c.jobErrors[id] = append([]models.JobError(nil), errs...)
	}
	return c
}

// Store is an in-memory relational store implementing every repository and
// repository.TxManager. Do runs fn against a private copy of the data and
// publishes it only when fn returns nil, so a failed unit of work leaves no
// trace. Units of work are serialized.
type Store struct {
	mu        sync.Mutex
	st        *state
	failMu    sync.Mutex
	failures  map[string]error
	commits   int
	rollbacks int
}

func NewStore() *Store {
	return &Store{st: newState(), failures: make(map[string]error)}
}

// FailOn makes the named operation ("Article.Update", "Audit.Append",
// "Tag.InsertMissing", ...) return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failures[op]
}

// Commits returns the number of committed units of work
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Rollbacks returns the number of rolled back units of work
func (s *Store) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

// Do implements repository.TxManager
func (s *Store) Do(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(s.bind(work, false)); err != nil {
		s.rollbacks++
		return err
	}
	if err := s.fail("Commit"); err != nil {
		s.rollbacks++
		return err
	}
	s.st = work
	s.commits++
	return nil
}

// Repositories returns autocommit repositories over the committed data.
// They must not be used inside Do.
func (s *Store) Repositories() *repository.Repositories {
	return s.bind(nil, true)
}

func (s *Store) bind(st *state, autocommit bool) *repository.Repositories {
	v := &view{store: s, st: st, autocommit: autocommit}
	return &repository.Repositories{
		User:     userRepo{v},
		Article:  articleRepo{v},
		Category: categoryRepo{v},
		Tag:      tagRepo{v},
		Audit:    auditRepo{v},
		Job:      jobRepo{v},
	}
}

type view struct {
	store      *Store
	st         *state
	autocommit bool
}

// with runs fn on the bound state, taking the store lock for autocommit views
func (v *view) with(op string, fn func(st *state) error) error {
	if err := v.store.fail(op); err != nil {
		return err
	}
	if !v.autocommit {
		return fn(v.st)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

// Seed helpers write committed rows directly.

// AddUser inserts a user and returns it with its id
func (s *Store) AddUser(username string, role models.Role) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u := &models.User{ID: s.st.next("users"), Username: username, Role: role, CreatedAt: now, UpdatedAt: now}
	s.st.users[u.ID] = u
	cp := *u
	return &cp
}

// TagCount returns the number of tag rows
func (s *Store) TagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.tags)
}

// AuditCount returns the number of log rows for the entity type
func (s *Store) AuditCount(entity models.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.audit[entity])
}

type userRepo struct{ v *view }

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	return r.v.with("User.Create", func(st *state) error {
		for _, u := range st.users {
			if u.Username == user.Username {
				return repository.ErrConflict
			}
		}
		user.ID = st.next("users")
		cp := *user
		st.users[user.ID] = &cp
		return nil
	})
}

func (r userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var out *models.User
	err := r.v.with("User.GetByID", func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

type articleRepo struct{ v *view }

// loadArticle copies the article with its tags ordered by name
func (st *state) loadArticle(id int64) (*models.Article, bool) {
	a, ok := st.articles[id]
	if !ok {
		return nil, false
	}
	cp := *a
	cp.Tags = make([]models.TagRef, 0, len(st.articleTags[id]))
	for tagID := range st.articleTags[id] {
		cp.Tags = append(cp.Tags, models.TagRef{ID: tagID, Name: st.tags[tagID].Name})
	}
	sort.Slice(cp.Tags, func(i, j int) bool { return cp.Tags[i].Name < cp.Tags[j].Name })
	return &cp, true
}

func (r articleRepo) Create(ctx context.Context, article *models.Article) error {
	return r.v.with("Article.Create", func(st *state) error {
		article.ID = st.next("articles")
		cp := *article
		cp.Tags = nil
		st.articles[article.ID] = &cp
		return nil
	})
}

func (r articleRepo) GetByID(ctx context.Context, id int64) (*models.Article, error) {
	var out *models.Article
	err := r.v.with("Article.GetByID", func(st *state) error {
		a, ok := st.loadArticle(id)
		if !ok {
			return repository.ErrNotFound
		}
		out = a
		return nil
	})
	return out, err
}

func (r articleRepo) Lock(ctx context.Context, id int64) error {
	return r.v.with("Article.Lock", func(st *state) error {
		if _, ok := st.articles[id]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r articleRepo) Update(ctx context.Context, article *models.Article) error {
	return r.v.with("Article.Update", func(st *state) error {
		a, ok := st.articles[article.ID]
		if !ok {
			return repository.ErrNotFound
		}
		a.Title = article.Title
		a.Content = article.Content
		a.CategoryID = article.CategoryID
		a.IsActive = article.IsActive
		a.UpdatedBy = article.UpdatedBy
		a.UpdatedAt = article.UpdatedAt
		return nil
	})
}

func (r articleRepo) Delete(ctx context.Context, id int64) error {
	return r.v.with("Article.Delete", func(st *state) error {
		if _, ok := st.articles[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.articles, id)
		delete(st.articleTags, id)
		return nil
	})
}

func (r articleRepo) ReplaceTags(ctx context.Context, articleID int64, tagIDs []int64) error {
	return r.v.with("Article.ReplaceTags", func(st *state) error {
		set := make(map[int64]bool, len(tagIDs))
		for _, id := range tagIDs {
			if _, ok := st.tags[id]; !ok {
				return repository.ErrNotFound
			}
			set[id] = true
		}
		st.articleTags[articleID] = set
		return nil
	})
}

func (r articleRepo) CountActiveByCategory(ctx context.Context, categoryID int64) (int, error) {
	count := 0
	err := r.v.with("Article.CountActiveByCategory", func(st *state) error {
		for _, a := range st.articles {
			if a.IsActive && a.CategoryID != nil && *a.CategoryID == categoryID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r articleRepo) CountActiveByTag(ctx context.Context, tagID int64) (int, error) {
	count := 0
	err := r.v.with("Article.CountActiveByTag", func(st *state) error {
		for id, links := range st.articleTags {
			if links[tagID] && st.articles[id].IsActive {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r articleRepo) IDsByTag(ctx context.Context, tagID int64) ([]int64, error) {
	var ids []int64
	err := r.v.with("Article.IDsByTag", func(st *state) error {
		for id, links := range st.articleTags {
			if links[tagID] {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r articleRepo) DetachCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	var ids []int64
	err := r.v.with("Article.DetachCategory", func(st *state) error {
		for id, a := range st.articles {
			if a.CategoryID != nil && *a.CategoryID == categoryID {
				a.CategoryID = nil
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r articleRepo) DetachTag(ctx context.Context, tagID int64) ([]int64, error) {
	var ids []int64
	err := r.v.with("Article.DetachTag", func(st *state) error {
		for id, links := range st.articleTags {
			if links[tagID] {
				delete(links, tagID)
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r articleRepo) StreamAll(ctx context.Context, callback func(*models.Article) error) error {
	var all []*models.Article
	err := r.v.with("Article.StreamAll", func(st *state) error {
		for _, id := range keys(st.articles) {
			a, _ := st.loadArticle(id)
			all = append(all, a)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, a := range all {
		if err := callback(a); err != nil {
			return err
		}
	}
	return nil
}

type categoryRepo struct{ v *view }

func (r categoryRepo) Create(ctx context.Context, category *models.Category) error {
	return r.v.with("Category.Create", func(st *state) error {
		category.ID = st.next("categories")
		cp := *category
		st.categories[category.ID] = &cp
		return nil
	})
}

func (r categoryRepo) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	var out *models.Category
	err := r.v.with("Category.GetByID", func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r categoryRepo) Lock(ctx context.Context, id int64) error {
	return r.v.with("Category.Lock", func(st *state) error {
		if _, ok := st.categories[id]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r categoryRepo) Update(ctx context.Context, category *models.Category) error {
	return r.v.with("Category.Update", func(st *state) error {
		c, ok := st.categories[category.ID]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *category
		cp.CreatedBy, cp.CreatedAt = c.CreatedBy, c.CreatedAt
		st.categories[category.ID] = &cp
		return nil
	})
}

func (r categoryRepo) Delete(ctx context.Context, id int64) error {
	return r.v.with("Category.Delete", func(st *state) error {
		if _, ok := st.categories[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.categories, id)
		for _, a := range st.articles {
			if a.CategoryID != nil && *a.CategoryID == id {
				a.CategoryID = nil
			}
		}
		return nil
	})
}

func (r categoryRepo) StreamAll(ctx context.Context, callback func(*models.Category) error) error {
	var all []*models.Category
	err := r.v.with("Category.StreamAll", func(st *state) error {
		for _, id := range keys(st.categories) {
			cp := *st.categories[id]
			all = append(all, &cp)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range all {
		if err := callback(c); err != nil {
			return err
		}
	}
	return nil
}

type tagRepo struct{ v *view }

func (st *state) tagNameTaken(name string, except int64) bool {
	for id, t := range st.tags {
		if id != except && t.Name == name {
			return true
		}
	}
	return false
}

func (r tagRepo) Create(ctx context.Context, tag *models.Tag) error {
	return r.v.with("Tag.Create", func(st *state) error {
		if st.tagNameTaken(tag.Name, 0) {
			return repository.ErrConflict
		}
		tag.ID = st.next("tags")
		cp := *tag
		st.tags[tag.ID] = &cp
		return nil
	})
}

func (r tagRepo) GetByID(ctx context.Context, id int64) (*models.Tag, error) {
	var out *models.Tag
	err := r.v.with("Tag.GetByID", func(st *state) error {
		t, ok := st.tags[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *t
		out = &cp
		return nil
	})
	return out, err
}

func (r tagRepo) Lock(ctx context.Context, id int64) error {
	return r.v.with("Tag.Lock", func(st *state) error {
		if _, ok := st.tags[id]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r tagRepo) Update(ctx context.Context, tag *models.Tag) error {
	return r.v.with("Tag.Update", func(st *state) error {
		t, ok := st.tags[tag.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if st.tagNameTaken(tag.Name, tag.ID) {
			return repository.ErrConflict
		}
		cp := *tag
		cp.CreatedBy, cp.CreatedAt = t.CreatedBy, t.CreatedAt
		st.tags[tag.ID] = &cp
		return nil
	})
}

func (r tagRepo) Delete(ctx context.Context, id int64) error {
	return r.v.with("Tag.Delete", func(st *state) error {
		if _, ok := st.tags[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.tags, id)
		for _, links := range st.articleTags {
			delete(links, id)
		}
		return nil
	})
}

func (r tagRepo) StreamAll(ctx context.Context, callback func(*models.Tag) error) error {
	var all []*models.Tag
	err := r.v.with("Tag.StreamAll", func(st *state) error {
		for _, id := range keys(st.tags) {
			cp := *st.tags[id]
			all = append(all, &cp)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, t := range all {
		if err := callback(t); err != nil {
			return err
		}
	}
	return nil
}

func (r tagRepo) FindByNames(ctx context.Context, names []string) ([]*models.Tag, error) {
	var out []*models.Tag
	err := r.v.with("Tag.FindByNames", func(st *state) error {
		want := make(map[string]bool, len(names))
		for _, n := range names {
			want[n] = true
		}
		for _, id := range keys(st.tags) {
			if t := st.tags[id]; want[t.Name] {
				cp := *t
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (r tagRepo) InsertMissing(ctx context.Context, tags []*models.Tag) ([]*models.Tag, error) {
	var created []*models.Tag
	err := r.v.with("Tag.InsertMissing", func(st *state) error {
		for _, t := range tags {
			if st.tagNameTaken(t.Name, 0) {
				continue
			}
			cp := *t
			cp.ID = st.next("tags")
			st.tags[cp.ID] = &cp
			out := cp
			created = append(created, &out)
		}
		return nil
	})
	return created, err
}

type auditRepo struct{ v *view }

func (r auditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	return r.v.with("Audit.Append", func(st *state) error {
		entry.ID = st.next("log:" + string(entry.Entity))
		if entry.ChangedAt.IsZero() {
			entry.ChangedAt = time.Now().UTC()
		}
		cp := *entry
		cp.OldData = append(json.RawMessage(nil), entry.OldData...)
		cp.NewData = append(json.RawMessage(nil), entry.NewData...)
		st.audit[entry.Entity] = append(st.audit[entry.Entity], &cp)
		return nil
	})
}

func (r auditRepo) ListByTarget(ctx context.Context, entity models.EntityType, targetID int64) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	err := r.v.with("Audit.ListByTarget", func(st *state) error {
		for _, e := range st.audit[entity] {
			if e.TargetID == targetID {
				cp := *e
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

type jobRepo struct{ v *view }

func (r jobRepo) Create(ctx context.Context, job *models.Job) error {
	return r.v.with("Job.Create", func(st *state) error {
		for _, j := range st.jobs {
			if job.IdempotencyKey != "" && j.IdempotencyKey == job.IdempotencyKey {
				return repository.ErrConflict
			}
		}
		cp := *job
		st.jobs[job.ID] = &cp
		return nil
	})
}

func (r jobRepo) Update(ctx context.Context, job *models.Job) error {
	return r.v.with("Job.Update", func(st *state) error {
		if _, ok := st.jobs[job.ID]; !ok {
			return repository.ErrNotFound
		}
		cp := *job
		st.jobs[job.ID] = &cp
		return nil
	})
}

func (r jobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var out *models.Job
	err := r.v.with("Job.GetByID", func(st *state) error {
		j, ok := st.jobs[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *j
		out = &cp
		return nil
	})
	return out, err
}

func (r jobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Job, error) {
	var out *models.Job
	err := r.v.with("Job.GetByIdempotencyKey", func(st *state) error {
		for _, j := range st.jobs {
			if j.IdempotencyKey == key {
				cp := *j
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r jobRepo) GetPendingJobs(ctx context.Context) ([]*models.Job, error) {
	var out []*models.Job
	err := r.v.with("Job.GetPendingJobs", func(st *state) error {
		for _, j := range st.jobs {
			if j.Status == models.JobStatusPending {
				cp := *j
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r jobRepo) MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error) {
	claimed := false
	err := r.v.with("Job.MarkJobAsProcessing", func(st *state) error {
		j, ok := st.jobs[jobID]
		if !ok || j.Status != models.JobStatusPending {
			return nil
		}
		now := time.Now().UTC()
		j.Status = models.JobStatusProcessing
		j.StartedAt = &now
		claimed = true
		return nil
	})
	return claimed, err
}

func (r jobRepo) AddErrors(ctx context.Context, jobID string, jobErrors []models.JobError) error {
	return r.v.with("Job.AddErrors", func(st *state) error {
		st.jobErrors[jobID] = append(st.jobErrors[jobID], jobErrors...)
		return nil
	})
}

func (r jobRepo) GetErrors(ctx context.Context, jobID string, limit int) ([]models.JobError, error) {
	var out []models.JobError
	err := r.v.with("Job.GetErrors", func(st *state) error {
		out = append(out, st.jobErrors[jobID]...)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func keys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
