package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
)

// report writes err for an operator and returns the exit status. Coded errors
// exit with their class's status; usage and flag errors exit 2.
func report(w io.Writer, err error) int {
	typed := pkgerrors.As(err)
	if typed == nil {
		fmt.Fprintln(w, err)
		if errors.Is(err, errUsage) || isFlagError(err) {
			return pkgerrors.ClassInput.ExitCode()
		}
		return pkgerrors.ClassInternal.ExitCode()
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	fmt.Fprintf(w, "%s (%s): %s\n", typed.Code(), meta.PublicMessage, typed.Message())
	if meta.DetailsAllowed && typed.Details() != nil {
		if raw, err := json.Marshal(typed.Details()); err == nil {
			fmt.Fprintf(w, "details: %s\n", raw)
		}
	}
	if meta.Retryable() {
		fmt.Fprintln(w, "the command may succeed if retried")
	}
	return meta.Class.ExitCode()
}

type flagError struct{ err error }

func (e flagError) Error() string { return e.err.Error() }
func (e flagError) Unwrap() error { return e.err }

func isFlagError(err error) bool {
	var fe flagError
	return errors.As(err, &fe)
}
