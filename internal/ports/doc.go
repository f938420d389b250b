// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the record sink and the outside world.
// They define what the sink needs from external systems without specifying
// how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [TransferSession]: Opens transactions against remote peers
//   - [PeerTransport]: Opens a transaction against one peer (RAW or HTTP)
//   - [Transaction]: Sends one payload with a confirm/complete handshake
//   - [WriterFactory]: Resolves schemas and creates record writers
//   - [RecordSetWriter]: Serializes a record set
//   - [PeerStateRepository]: Persists and loads peer status
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The sink (internal/sink) depends only on these interfaces. The
// site-to-site client (internal/sitetosite), the record writers
// (internal/recordwriter) and the file adapters (internal/adapters)
// implement them.
package ports
