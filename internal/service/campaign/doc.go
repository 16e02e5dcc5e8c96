// Package campaign implements the campaign control plane.
//
// The service validates new campaigns and applies the operator-driven status
// transitions (queue, pause, resume, abort). The execution loop in worker/
// observes those transitions by re-reading the campaign each iteration; there
// is no other channel between the two.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
