package webhook

import "fmt"

// Kind groups failures by the stage that produced them.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindPrecondition   Kind = "precondition"
	KindExecution      Kind = "execution"
)

// Failure is a rejected or failed delivery, translated to an HTTP status and message.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind Kind, status int, message string, err error) *Failure {
	return &Failure{Kind: kind, Status: status, Message: message, Err: err}
}
