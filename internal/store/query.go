package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/geo"
)

// Query is a conjunction of task predicates. The zero Query matches every task.
type Query struct {
	ID             *uuid.UUID
	Statuses       []domain.TaskStatus
	DeadlineBefore *time.Time
	Box            *geo.Box
	Unnotified     bool
}

// AllTasks matches every task.
func AllTasks() Query {
	return Query{}
}

// ByStatus matches tasks in the given status.
func ByStatus(status domain.TaskStatus) Query {
	return Query{Statuses: []domain.TaskStatus{status}}
}

// ByStatusDeadlineBefore matches tasks in the given status whose deadline is
// strictly before t. Tasks without a deadline never match.
func ByStatusDeadlineBefore(status domain.TaskStatus, t time.Time) Query {
	q := ByStatus(status)
	q.DeadlineBefore = &t
	return q
}

// ByID matches the task with the given ID.
func ByID(id uuid.UUID) Query {
	return Query{ID: &id}
}

// InBoundingBox matches tasks located inside the box spanned by southWest and northEast.
func InBoundingBox(southWest, northEast geo.Coordinate) Query {
	return Query{Box: &geo.Box{SouthWest: southWest, NorthEast: northEast}}
}

// And returns a query matching tasks that satisfy both q and other.
// Status lists are intersected; for single-valued predicates other wins when both are set.
func (q Query) And(other Query) Query {
	out := q
	if other.ID != nil {
		out.ID = other.ID
	}
	if len(other.Statuses) > 0 {
		if len(q.Statuses) == 0 {
			out.Statuses = other.Statuses
		} else {
			out.Statuses = intersectStatuses(q.Statuses, other.Statuses)
			if len(out.Statuses) == 0 {
				// Keep the query unsatisfiable rather than widening it.
				out.Statuses = []domain.TaskStatus{""}
			}
		}
	}
	if other.DeadlineBefore != nil {
		if q.DeadlineBefore == nil || other.DeadlineBefore.Before(*q.DeadlineBefore) {
			out.DeadlineBefore = other.DeadlineBefore
		}
	}
	if other.Box != nil {
		out.Box = other.Box
	}
	out.Unnotified = q.Unnotified || other.Unnotified
	return out
}

// WithUnnotified restricts q to tasks whose failure has not been surfaced yet.
func (q Query) WithUnnotified() Query {
	q.Unnotified = true
	return q
}

// Matches reports whether task satisfies every predicate in q.
func (q Query) Matches(task *domain.Task) bool {
	if q.ID != nil && task.ID != *q.ID {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, task.Status) {
		return false
	}
	if q.DeadlineBefore != nil && (task.Deadline == nil || !task.Deadline.Before(*q.DeadlineBefore)) {
		return false
	}
	if q.Box != nil && !q.Box.Contains(task.Coordinate()) {
		return false
	}
	if q.Unnotified && task.NotifiedAt != nil {
		return false
	}
	return true
}

// SortTasks orders tasks by deadline ascending with missing deadlines last,
// breaking ties by ID.
func SortTasks(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.Deadline == nil && b.Deadline != nil:
			return false
		case a.Deadline != nil && b.Deadline == nil:
			return true
		case a.Deadline != nil && b.Deadline != nil && !a.Deadline.Equal(*b.Deadline):
			return a.Deadline.Before(*b.Deadline)
		}
		return a.ID.String() < b.ID.String()
	})
}

func containsStatus(statuses []domain.TaskStatus, s domain.TaskStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func intersectStatuses(a, b []domain.TaskStatus) []domain.TaskStatus {
	var out []domain.TaskStatus
	for _, s := range a {
		if containsStatus(b, s) {
			out = append(out, s)
		}
	}
	return out
}
