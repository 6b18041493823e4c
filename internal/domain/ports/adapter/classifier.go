package adapter

import derror "iap-sync-engine/internal/error"

// ErrorClassifier is the port for the crash-reporting collaborator. Only its
// classification contract is used here: it maps a raw error to the stable
// code surfaced in failure actions, recording the error as a side effect.
type ErrorClassifier interface {
	Classify(err error) derror.Code
}
