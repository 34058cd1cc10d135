// Package memory provides an in-process implementation of store.TaskRepository.
//
// Units of work stage their mutations in a private overlay and apply them to
// the committed map only when the work function succeeds, so a failed or
// cancelled unit of work leaves no trace. It backs the default service
// configuration and the component tests.
package memory
