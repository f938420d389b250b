// Package domain contains the core entities and value objects for recordship.
//
// This package is the innermost layer of the application. It has no
// dependencies on infrastructure concerns (network, file system, logging)
// and contains only the types shared by the sink, the transfer client and
// the record writers.
//
// # Entities
//
//   - [Schema] and [Field]: the shape of a record set
//   - [Record]: a single structured row
//   - [RecordSet]: a forward-only, single-pass cursor over records
//   - [WriteResult]: outcome of serializing a record set
//   - [Attributes]: key/value metadata attached to an outgoing payload
//   - [PeerState]: persisted status of remote transfer peers
//
// # Errors
//
// Activation failures are reported as [InitError] and send failures as
// [TransferError]. Both unwrap to the underlying cause.
package domain
