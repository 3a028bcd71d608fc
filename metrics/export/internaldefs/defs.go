package internaldefs

import (
	levelAuth "github.com/MrEthical07/levelAuth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   levelAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   levelAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: levelAuth.MetricSignupSuccess, Name: "levelauth_signup_success_total", Help: "Accounts created by signup."},
	{ID: levelAuth.MetricSignupValidationFailure, Name: "levelauth_signup_validation_failure_total", Help: "Signups rejected for invalid input."},
	{ID: levelAuth.MetricSignupDuplicate, Name: "levelauth_signup_duplicate_total", Help: "Signups rejected for a taken email or username."},
	{ID: levelAuth.MetricSignupUplineNotFound, Name: "levelauth_signup_upline_not_found_total", Help: "Signups rejected for an unresolvable upline."},
	{ID: levelAuth.MetricEmailConfirmSuccess, Name: "levelauth_email_confirm_success_total", Help: "Accounts verified by email confirmation."},
	{ID: levelAuth.MetricEmailConfirmFailure, Name: "levelauth_email_confirm_failure_total", Help: "Rejected email confirmation tokens."},
	{ID: levelAuth.MetricEmailConfirmAlreadyVerified, Name: "levelauth_email_confirm_already_verified_total", Help: "Confirmations of accounts that were already verified."},
	{ID: levelAuth.MetricLoginSuccess, Name: "levelauth_login_success_total", Help: "Successful login attempts."},
	{ID: levelAuth.MetricLoginFailure, Name: "levelauth_login_failure_total", Help: "Failed login attempts."},
	{ID: levelAuth.MetricLoginUnverified, Name: "levelauth_login_unverified_total", Help: "Logins refused because the email is unverified."},
	{ID: levelAuth.MetricSessionCreated, Name: "levelauth_session_created_total", Help: "Issued session tokens."},
	{ID: levelAuth.MetricSessionValid, Name: "levelauth_session_valid_total", Help: "Session validations that succeeded."},
	{ID: levelAuth.MetricSessionInvalid, Name: "levelauth_session_invalid_total", Help: "Session validations that failed."},
	{ID: levelAuth.MetricLogout, Name: "levelauth_logout_total", Help: "Logout requests."},
	{ID: levelAuth.MetricPasswordResetRequest, Name: "levelauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: levelAuth.MetricPasswordResetConfirmSuccess, Name: "levelauth_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: levelAuth.MetricPasswordResetConfirmFailure, Name: "levelauth_password_reset_confirm_failure_total", Help: "Failed password resets."},
	{ID: levelAuth.MetricPasswordRehash, Name: "levelauth_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: levelAuth.MetricMailFailure, Name: "levelauth_mail_failure_total", Help: "Emails that could not be handed to the mailer."},
	{ID: levelAuth.MetricProfileRead, Name: "levelauth_profile_read_total", Help: "Profile reads."},
}

// AuditDef names one audit delivery counter for export.
type AuditDef struct {
	Name  string
	Help  string
	Value func(levelAuth.AuditStats) uint64
}

// AuditDefs lists the audit delivery counters in render order.
var AuditDefs = []AuditDef{
	{Name: "levelauth_audit_delivered_total", Help: "Audit events handed to the sink.", Value: func(s levelAuth.AuditStats) uint64 { return s.Delivered }},
	{Name: "levelauth_audit_dropped_total", Help: "Audit events dropped before reaching the sink.", Value: func(s levelAuth.AuditStats) uint64 { return s.Dropped }},
	{Name: "levelauth_audit_failed_total", Help: "Audit events lost to a failing sink.", Value: func(s levelAuth.AuditStats) uint64 { return s.Failed }},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: levelAuth.MetricLoginLatency, Name: "levelauth_login_latency_seconds", Help: "Login latency histogram."},
	{ID: levelAuth.MetricValidateLatency, Name: "levelauth_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's eight latency buckets, in seconds.
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

// HistogramBoundSuffix is HistogramBounds in a form usable inside metric names.
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

// NormalizeBuckets copies raw into a fixed eight bucket array, zero filling
// missing buckets and dropping extras.
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
