// Package postgres provides the PostgreSQL implementation of the task store
// defined in the internal/store package. It handles database connections,
// goose migrations, query building for store.Query predicates, and the
// transactional unit of work.
package postgres
