// Package permission maps roles to permission bitmasks.
//
// Permissions are registered by name into a [Registry], which assigns each
// one a bit in a 64-bit [Mask64]. A [RoleManager] compiles each role's
// permission list into a mask once; checks are then a single AND. Both are
// frozen after setup and safe for concurrent reads.
//
// [Standard] returns the frozen manager for the three built-in roles.
package permission
