package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/search"
)

// entity is the shape shared by everything with a soft-delete lifecycle
type entity interface {
	EntityID() int64
	Active() bool
	MarkActive(active bool, actorID int64, at time.Time)
}

// policy specializes the lifecycle for one entity type
type policy[T entity] struct {
	kind models.EntityType
	// lock holds the row for the rest of the transaction, so concurrent
	// writers of one entity run one after another
	lock   func(ctx context.Context, repos *repository.Repositories, id int64) error
	load   func(ctx context.Context, repos *repository.Repositories, id int64) (T, error)
	save   func(ctx context.Context, repos *repository.Repositories, e T) error
	purge  func(ctx context.Context, repos *repository.Repositories, id int64) error
	mutate func(actor models.Actor, e T) error
	// delete guards hard delete, which may be stricter than mutate
	delete func(actor models.Actor, e T) error
	// references counts active articles pointing at the entity. nil means
	// nothing can reference it.
	references func(ctx context.Context, repos *repository.Repositories, id int64) (int, error)
	// detach strips every reference and returns the affected article ids
	detach   func(ctx context.Context, repos *repository.Repositories, id int64) ([]int64, error)
	document func(ctx context.Context, e T) any
}

// lifecycle runs the state machine shared by articles, categories and tags:
// mutate and audit inside one transaction, then sync the index.
type lifecycle[T entity] struct {
	policy policy[T]
	tx     repository.TxManager
	reads  *repository.Repositories
	sync   *search.Syncer
	names  *nameResolver
	// resync re-projects articles whose references were changed by a
	// taxonomy transition
	resync func(ctx context.Context, articleIDs []int64)
	log    zerolog.Logger
}

// now is truncated to the precision the relational store keeps, so
// snapshots and stored rows agree.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func snapshot(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return b, nil
}

// appendAudit writes the one log row of an operation. before is nil for CREATE.
func appendAudit(ctx context.Context, repos *repository.Repositories, kind models.EntityType, id int64,
	action models.AuditAction, actorID int64, before, after json.RawMessage) error {
	err := repos.Audit.Append(ctx, &models.AuditEntry{
		Entity:    kind,
		TargetID:  id,
		Action:    action,
		ChangedBy: actorID,
		OldData:   before,
		NewData:   after,
	})
	if err != nil {
		return fmt.Errorf("append %s log: %w", kind, err)
	}
	return nil
}

// load locks the row then reads it, so the state checks that follow see
// every transition committed before ours
func (l *lifecycle[T]) load(ctx context.Context, repos *repository.Repositories, id int64) (T, error) {
	var zero T
	if err := l.policy.lock(ctx, repos, id); err != nil {
		return zero, mapNotFound(l.policy.kind, err)
	}
	e, err := l.policy.load(ctx, repos, id)
	if err != nil {
		return zero, mapNotFound(l.policy.kind, err)
	}
	return e, nil
}

// create inserts via build and logs CREATE. build runs inside the
// transaction and must insert the row.
func (l *lifecycle[T]) create(ctx context.Context, actor models.Actor, build func(repos *repository.Repositories) (T, error)) (T, error) {
	var out T
	err := l.tx.Do(ctx, func(repos *repository.Repositories) error {
		e, err := build(repos)
		if err != nil {
			return err
		}
		after, err := snapshot(e)
		if err != nil {
			return err
		}
		if err := appendAudit(ctx, repos, l.policy.kind, e.EntityID(), models.ActionCreate, actor.ID, nil, after); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	l.names.remember(actor)
	l.sync.Index(ctx, l.policy.kind, out.EntityID(), l.policy.document(ctx, out))
	return out, nil
}

// update applies a field patch, stamps updated_by/updated_at and logs
// UPDATE with the before and after snapshots. apply may change is_active.
func (l *lifecycle[T]) update(ctx context.Context, actor models.Actor, id int64,
	apply func(repos *repository.Repositories, e T) error) (T, error) {
	var out T
	err := l.tx.Do(ctx, func(repos *repository.Repositories) error {
		e, err := l.load(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := l.policy.mutate(actor, e); err != nil {
			return err
		}
		before, err := snapshot(e)
		if err != nil {
			return err
		}

		if err := apply(repos, e); err != nil {
			return err
		}
		e.MarkActive(e.Active(), actor.ID, now())
		if err := l.policy.save(ctx, repos, e); err != nil {
			return err
		}

		after, err := snapshot(e)
		if err != nil {
			return err
		}
		if err := appendAudit(ctx, repos, l.policy.kind, id, models.ActionUpdate, actor.ID, before, after); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	l.names.remember(actor)
	l.sync.Index(ctx, l.policy.kind, id, l.policy.document(ctx, out))
	return out, nil
}

// softDelete moves ACTIVE to INACTIVE. Entities still referenced by active
// articles are refused unless force is set, in which case the references
// are stripped in the same transaction.
func (l *lifecycle[T]) softDelete(ctx context.Context, actor models.Actor, id int64, force bool) (T, error) {
	return l.transition(ctx, actor, id, false, force)
}

// restore moves INACTIVE to ACTIVE
func (l *lifecycle[T]) restore(ctx context.Context, actor models.Actor, id int64) (T, error) {
	return l.transition(ctx, actor, id, true, false)
}

func (l *lifecycle[T]) transition(ctx context.Context, actor models.Actor, id int64, active, force bool) (T, error) {
	var out T
	var affected []int64
	at := now()

	action := models.ActionSoftDelete
	if active {
		action = models.ActionRestore
	}

	err := l.tx.Do(ctx, func(repos *repository.Repositories) error {
		e, err := l.load(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := l.policy.mutate(actor, e); err != nil {
			return err
		}
		switch {
		case active && e.Active():
			return alreadyActive(l.policy.kind)
		case !active && !e.Active():
			return alreadyDeleted(l.policy.kind)
		}

		if !active {
			if affected, err = l.clearReferences(ctx, repos, id, force, false); err != nil {
				return err
			}
		}

		before, err := snapshot(e)
		if err != nil {
			return err
		}
		e.MarkActive(active, actor.ID, at)
		if err := l.policy.save(ctx, repos, e); err != nil {
			return err
		}
		after, err := snapshot(e)
		if err != nil {
			return err
		}
		if err := appendAudit(ctx, repos, l.policy.kind, id, action, actor.ID, before, after); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	l.names.remember(actor)
	l.sync.Update(ctx, l.policy.kind, id, search.ActivePatch(active, actor.ID, l.names.name(ctx, actor.ID), at))
	l.resyncArticles(ctx, affected)
	return out, nil
}

// hardDelete removes the row and its associations. The DELETE log keeps the
// full prior snapshot since the row is gone afterwards.
func (l *lifecycle[T]) hardDelete(ctx context.Context, actor models.Actor, id int64, force bool) error {
	var affected []int64
	err := l.tx.Do(ctx, func(repos *repository.Repositories) error {
		e, err := l.load(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := l.policy.delete(actor, e); err != nil {
			return err
		}
		if affected, err = l.clearReferences(ctx, repos, id, force, true); err != nil {
			return err
		}

		before, err := snapshot(e)
		if err != nil {
			return err
		}
		if err := l.policy.purge(ctx, repos, id); err != nil {
			return mapNotFound(l.policy.kind, err)
		}
		marker, err := snapshot(map[string]any{"id": id, "deleted": true})
		if err != nil {
			return err
		}
		return appendAudit(ctx, repos, l.policy.kind, id, models.ActionDelete, actor.ID, before, marker)
	})
	if err != nil {
		return err
	}

	l.sync.Delete(ctx, l.policy.kind, id)
	l.resyncArticles(ctx, affected)
	return nil
}

// clearReferences enforces the active-reference rule. With always set the
// references are stripped even when none are active, so no row is left
// pointing at a purged entity.
func (l *lifecycle[T]) clearReferences(ctx context.Context, repos *repository.Repositories, id int64, force, always bool) ([]int64, error) {
	if l.policy.references == nil {
		return nil, nil
	}
	n, err := l.policy.references(ctx, repos, id)
	if err != nil {
		return nil, err
	}
	if n > 0 && !force {
		return nil, conflict(l.policy.kind, "%s is used by %d active article(s)", l.policy.kind, n)
	}
	if n == 0 && !always {
		return nil, nil
	}
	return l.policy.detach(ctx, repos, id)
}

func (l *lifecycle[T]) resyncArticles(ctx context.Context, ids []int64) {
	if len(ids) > 0 && l.resync != nil {
		l.resync(ctx, ids)
	}
}

// history returns the entity's log rows in append order
func (l *lifecycle[T]) history(ctx context.Context, id int64) ([]*models.AuditEntry, error) {
	entries, err := l.reads.Audit.ListByTarget(ctx, l.policy.kind, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return entries, nil
}
