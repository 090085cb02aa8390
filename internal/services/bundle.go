package services

// Bundle aggregates the MFA core services. The embedding application
// mounts these behind its own controllers; this module deliberately
// exposes no HTTP handlers of its own.
type Bundle struct {
	Gate     *MfaGate
	TOTP     *TOTPService
	EmailOTP *EmailOTPService
	Recovery *RecoveryService
	WebAuthn *WebAuthnService
	Sessions *SessionGuard
	Reset    *ResetService
}

// Enabled names the capabilities this bundle was wired with, for the
// startup log.
func (b Bundle) Enabled() []string {
	var names []string
	if b.Gate != nil {
		names = append(names, "login_gate")
	}
	if b.TOTP != nil {
		names = append(names, "totp")
	}
	if b.EmailOTP != nil {
		names = append(names, "email_otp")
	}
	if b.Recovery != nil {
		names = append(names, "recovery_codes")
	}
	if b.WebAuthn != nil {
		names = append(names, "webauthn")
	}
	if b.Sessions != nil {
		names = append(names, "session_guard")
	}
	if b.Reset != nil {
		names = append(names, "mfa_reset")
	}
	return names
}
