// Package mongo provides a MongoDB implementation of the command interface.
// Projects, files and chat messages are stored in three collections of one
// database. The Store also implements health.Pinger so services can report
// the database in their health checks.
package mongo
