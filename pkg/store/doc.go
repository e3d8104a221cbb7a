/*
Package store provides a SQLite-backed collection of named template sources.

It keeps raw template text only: programs are always compiled by the caller,
so the database never holds compiled state and stored templates cannot
reference one another. Templates can be saved, fetched, listed and deleted by
name, and the whole collection can be exported to or imported from JSON for
backups and transfers.
*/
package store
