package login

import "fmt"

// Step names a stage of the sign-in sequence.
type Step string

const (
	StepFillUsername          Step = "fill-username"
	StepSubmitUsername        Step = "submit-username"
	StepAwaitUsernameDetached Step = "await-username-detached"
	StepFillPassword          Step = "fill-password"
	StepSubmitPassword        Step = "submit-password"
	StepAwaitPasswordDetached Step = "await-password-detached"
	StepMFABranch             Step = "mfa-branch"
	StepGenerateOTP           Step = "generate-otp"
	StepFillOTP               Step = "fill-otp"
	StepSubmitOTP             Step = "submit-otp"
	StepAwaitOTPDetached      Step = "await-otp-detached"
	StepAwaitStaySignedIn     Step = "await-stay-signed-in"
	StepConfirm               Step = "confirm-stay-signed-in"
)

// StepError records the step at which a login aborted.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("login step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}
