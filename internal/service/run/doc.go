// Package run implements bulk-send run lifecycle management.
//
// The service layer owns run creation/upsert semantics and the counter
// rules: expected_email_send_count is fixed when the run is created and
// success_email_count only ever moves up, through an atomic increment at
// the storage layer. It depends on the Repository interface defined here
// and never imports from api/.
//
// Repository implementations live in repository/postgres/.
package run
