// Package store groups the account.Store implementations.
//
//   - memory: process-local maps, for tests and single-node development.
//   - redisstore: JSON documents in Redis with WATCH/MULTI updates.
//   - sqlstore: database/sql over postgres, mysql or sqlite with goose
//     migrations and optimistic versioned updates.
//
// All three pass the same behavioural suite in storetest.
package store
