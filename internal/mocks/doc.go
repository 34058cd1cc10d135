// Package mocks provides hand-written mock implementations of the service
// interfaces the HTTP layer depends on.
//
// Each mock has a function field per method. When a field is nil the method
// returns the mock's default values, so a test only sets what it exercises:
//
//	tasks := &mocks.MockTaskService{
//	    GetTaskFn: func(ctx context.Context, id uuid.UUID) (domain.Task, error) {
//	        return domain.Task{}, store.ErrTaskNotFound
//	    },
//	}
package mocks
