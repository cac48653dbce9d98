package domain

type AdmissionState string

const (
	StateIdle             AdmissionState = "idle"
	StateLookup           AdmissionState = "lookup"
	StateEnded            AdmissionState = "ended"
	StatePending          AdmissionState = "pending"
	StateEligibilityCheck AdmissionState = "eligibility_check"
	StateBallotAdmit      AdmissionState = "ballot_admit"
	StateClosedRejected   AdmissionState = "closed_rejected"
	StateOpenOTP          AdmissionState = "open_otp"
	StateOTPVerifying     AdmissionState = "otp_verifying"
	StateOTPFailed        AdmissionState = "otp_failed"
)

// Terminal states end an attempt; the voter has to start a new lookup.
func (s AdmissionState) Terminal() bool {
	switch s {
	case StateEnded, StatePending, StateBallotAdmit, StateClosedRejected:
		return true
	default:
		return false
	}
}

// AwaitingCode reports whether a code can be submitted in this state.
func (s AdmissionState) AwaitingCode() bool {
	return s == StateOpenOTP || s == StateOTPFailed
}
