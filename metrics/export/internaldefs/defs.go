package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricRegisterSuccess, Name: "goidentity_register_success_total", Help: "Successful registrations."},
	{ID: goIdentity.MetricRegisterDuplicate, Name: "goidentity_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed logins."},
	{ID: goIdentity.MetricLoginLocked, Name: "goidentity_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: goIdentity.MetricAccountLocked, Name: "goidentity_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: goIdentity.MetricRefreshSuccess, Name: "goidentity_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goIdentity.MetricRefreshFailure, Name: "goidentity_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: goIdentity.MetricSessionCreated, Name: "goidentity_session_created_total", Help: "Created sessions."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Single-session logouts."},
	{ID: goIdentity.MetricLogoutAll, Name: "goidentity_logout_all_total", Help: "Logout-all operations."},
	{ID: goIdentity.MetricSessionRevoked, Name: "goidentity_session_revoked_total", Help: "Sessions revoked by id."},
	{ID: goIdentity.MetricPasswordChangeSuccess, Name: "goidentity_password_change_success_total", Help: "Successful password changes."},
	{ID: goIdentity.MetricPasswordChangeFailure, Name: "goidentity_password_change_failure_total", Help: "Rejected password changes."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "goidentity_password_reset_request_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricPasswordResetSuccess, Name: "goidentity_password_reset_success_total", Help: "Successful password resets."},
	{ID: goIdentity.MetricPasswordResetFailure, Name: "goidentity_password_reset_failure_total", Help: "Rejected password resets."},
	{ID: goIdentity.MetricEmailVerificationRequest, Name: "goidentity_email_verification_request_total", Help: "Verification emails sent."},
	{ID: goIdentity.MetricEmailVerificationSuccess, Name: "goidentity_email_verification_success_total", Help: "Successful email verifications."},
	{ID: goIdentity.MetricEmailVerificationFailure, Name: "goidentity_email_verification_failure_total", Help: "Rejected email verifications."},
	{ID: goIdentity.MetricMailDeliveryFailure, Name: "goidentity_mail_delivery_failure_total", Help: "Failed mail deliveries."},
	{ID: goIdentity.MetricRateLimitHit, Name: "goidentity_rate_limit_hit_total", Help: "Requests denied by the throttle."},
	{ID: goIdentity.MetricAccountDeactivated, Name: "goidentity_account_deactivated_total", Help: "Account deactivations."},
	{ID: goIdentity.MetricRoleChanged, Name: "goidentity_role_changed_total", Help: "Role assignments."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricLoginLatency, Name: "goidentity_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds are the upper bounds of the eight engine buckets, in
// seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable in names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
