// Package account defines the durable identity record, its status state
// machine and the Store contract implemented by store/postgres and
// store/memory.
//
// Every Store mutation is a single-row conditional update: the caller names
// the statuses it expects and the store applies the change only if the row is
// still in one of them. That precondition is the only concurrency control the
// account record needs.
package account
