// Package credstore defines the [Store] interface for nation credential
// backends and provides two implementations:
//
//   - [MemoryStore]: credentials kept in memory, lost on restart.
//   - [SQLiteStore]: credentials persisted in a SQLite database, so
//     autologin tokens survive restarts and passwords never need to be
//     kept around.
//
// Custom backends can be created by implementing the [Store] interface.
package credstore
