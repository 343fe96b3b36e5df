// Package security builds the posture report an engine exposes through
// Engine.SecurityReport. The report is derived from configuration only.
package security
