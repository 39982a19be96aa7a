/*
Package store declares the persistence contract of clearpay together with the
entities it persists.

Status logs are append only. A log entry is never updated nor deleted and
once a terminal status is recorded for a transaction, no further status can
be appended. Every backend must apply mutations atomically: the read of the
current state and the write that depends on it happen in a single database
transaction.

Two backends are provided. badgerstore is an embedded key value store that
can also run in memory, pgstore keeps the data in postgres. Both are checked
by the shared storetest suite.
*/
package store
