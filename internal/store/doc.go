// Package store defines the persistence contract for tasks: CRUD
// operations, the query predicates the lifecycle and proximity layers
// depend on, and the transactional unit of work that serializes every
// read-decide-write sequence against one store instance.
package store
